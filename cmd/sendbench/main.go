// sendbench 对单个会话并发发送文本消息，校验计数无丢失并输出延迟分布。
//
//	N=500 CONC=32 INTERVAL=0 go run ./cmd/sendbench
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/unveil/config"
	"github.com/d60-Lab/unveil/internal/gate"
	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/reveal"
	"github.com/d60-Lab/unveil/internal/service"
	"github.com/d60-Lab/unveil/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}

	N := envInt("N", 200)
	CONC := envInt("CONC", 16)
	if CONC < 1 {
		CONC = 1
	}
	interval := time.Duration(envInt("INTERVAL", 0)) * time.Millisecond
	ctx := context.Background()

	users := repository.NewUserRepository(db)
	a := &model.User{ID: uuid.NewString(), Password: "p"}
	b := &model.User{ID: uuid.NewString(), Password: "p"}
	for _, u := range []*model.User{a, b} {
		u.Username = "bench_" + u.ID[:8]
		u.Email = u.ID[:8] + "@bench.local"
		if err := users.Create(ctx, u); err != nil {
			panic(err)
		}
	}
	convs := repository.NewConversationRepository(db)
	conv := &model.Conversation{ID: uuid.NewString(), User1ID: a.ID, User2ID: b.ID}
	if err := convs.Create(ctx, conv); err != nil {
		panic(err)
	}

	policy := must(reveal.New(cfg.Reveal.Thresholds))
	chat := service.NewChatService(db, convs, repository.NewMessageRepository(db),
		service.NewProfileCache(users, nil, 0),
		gate.New(gate.Options{MinInterval: interval, TaskTimeout: cfg.Chat.SendTimeout}),
		policy, nil, service.ChatOptions{LockTimeout: cfg.Database.LockTimeout})

	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	var (
		mu       sync.Mutex
		lat      = make([]time.Duration, 0, N)
		failures int
		wg       sync.WaitGroup
	)
	t0 := time.Now()
	for w := 0; w < CONC; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				sender := a.ID
				if i%2 == 1 {
					sender = b.ID
				}
				st := time.Now()
				_, err := chat.SendText(ctx, conv.ID, sender, fmt.Sprintf("msg %d", i))
				d := time.Since(st)
				mu.Lock()
				if err != nil {
					failures++
					fmt.Fprintf(os.Stderr, "send %d: %v\n", i, err)
				} else {
					lat = append(lat, d)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(t0)

	// 校验：持久化计数 == 成功发送数，分页遍历条数 == 文本 + 章节消息
	prog := must(chat.Progression(ctx, conv.ID, a.ID))
	seen := 0
	cursor := ""
	for {
		page := must(chat.GetMessages(ctx, conv.ID, a.ID, 100, cursor))
		seen += len(page.Messages)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	ok := len(lat)
	wantLevel := policy.Level(ok)

	fmt.Printf("N=%d, CONC=%d, INTERVAL=%v\n", N, CONC, interval)
	fmt.Printf("Send total: %v, ok=%d, failed=%d, p50: %v, p95: %v, p99: %v\n",
		total, ok, failures, pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99))
	fmt.Printf("Persisted count=%d level=%d (expect %d/%d), paged messages=%d (expect %d)\n",
		prog.TextMessageCount, prog.RevealLevel, ok, wantLevel, seen, ok+wantLevel)

	if prog.TextMessageCount != ok || prog.RevealLevel != wantLevel || seen != ok+wantLevel {
		fmt.Println("MISMATCH")
		os.Exit(1)
	}
}
