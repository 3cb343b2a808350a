// cachebench 比较会话详情读取在有无 redis 资料缓存时的延迟与回源次数。
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/unveil/config"
	"github.com/d60-Lab/unveil/internal/gate"
	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/reveal"
	"github.com/d60-Lab/unveil/internal/service"
	"github.com/d60-Lab/unveil/pkg/database"
)

type read struct {
	convID string
	userID string
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.Migrate(db))

	const (
		userCount = 2000
		convCount = 1000
		readCount = 9000
	)

	fmt.Println("Setting up test data...")
	users := make([]model.User, userCount)
	for i := range users {
		id := uuid.NewString()
		users[i] = model.User{
			ID:          id,
			Username:    "cb_" + id[:12],
			Email:       id[:12] + "@cachebench.local",
			Password:    "secret",
			DisplayName: fmt.Sprintf("user %d", i),
			Age:         18 + i%30,
			PhotoURL:    "https://img.example.com/" + id + ".jpg",
		}
	}
	mustDo(db.CreateInBatches(&users, 500).Error)

	rnd := rand.New(rand.NewSource(42))
	convRepo := repository.NewConversationRepository(db)
	convs := make([]*model.Conversation, 0, convCount)
	for len(convs) < convCount {
		a, b := users[rnd.Intn(userCount)].ID, users[rnd.Intn(userCount)].ID
		if a == b {
			continue
		}
		c := &model.Conversation{ID: uuid.NewString(), User1ID: a, User2ID: b}
		mustDo(convRepo.Create(ctx, c))
		convs = append(convs, c)
	}

	// 热点分布：20% 的会话承担大部分读取
	reads := make([]read, readCount)
	for i := range reads {
		idx := rnd.Intn(convCount)
		if rnd.Float64() < 0.8 {
			idx = rnd.Intn(convCount / 5)
		}
		c := convs[idx]
		uid := c.User1ID
		if rnd.Intn(2) == 1 {
			uid = c.User2ID
		}
		reads[i] = read{convID: c.ID, userID: uid}
	}
	fmt.Println("Test data ready")

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	noCache := runScenario(ctx, db, nil, reads)
	cached := runScenario(ctx, db, client, reads)

	fmt.Printf("\nConversation view latency (%d reads, %d conversations, %d users)\n", readCount, convCount, userCount)
	for _, r := range []struct {
		name string
		res  scenarioResult
	}{{"No cache", noCache}, {"Profile cache", cached}} {
		fmt.Printf("%-14s avg=%v p95=%v p99=%v hits=%d misses=%d db_bulk=%d cache_keys=%d mem=%s\n",
			r.name, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99),
			r.res.counters.Hits, r.res.counters.Misses, r.res.counters.BulkLoads,
			r.res.cacheKeys, formatBytes(r.res.memoryBytes),
		)
	}
}

type scenarioResult struct {
	durations   []time.Duration
	counters    service.ProfileCacheCounters
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, db *gorm.DB, client *redis.Client, reads []read) scenarioResult {
	users := repository.NewUserRepository(db)
	profiles := service.NewProfileCache(users, client, 10*time.Minute)
	chat := service.NewChatService(db, repository.NewConversationRepository(db), repository.NewMessageRepository(db),
		profiles, gate.New(gate.Options{}), reveal.Default(), nil, service.ChatOptions{})

	if client != nil {
		client.FlushAll(ctx)
		fmt.Print("  Warming cache...")
		for _, r := range reads {
			must(chat.GetConversation(ctx, r.convID, r.userID))
		}
		fmt.Println(" done")
	}
	profiles.ResetCounters()

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reads))
	for _, r := range reads {
		start := time.Now()
		must(chat.GetConversation(ctx, r.convID, r.userID))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	res := scenarioResult{durations: out, counters: profiles.Counters()}
	if client != nil {
		if n, err := client.DBSize(ctx).Result(); err == nil {
			res.cacheKeys = int(n)
		}
		if info, err := client.Info(ctx, "memory").Result(); err == nil {
			res.memoryBytes = parseRedisMemory(info)
		}
	}
	return res
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
