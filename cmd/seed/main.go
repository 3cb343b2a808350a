// seed 创建一组开发用户并让前两位互相喜欢，打印各自的 JWT。
package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/d60-Lab/unveil/config"
	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/service"
	"github.com/d60-Lab/unveil/pkg/auth"
	"github.com/d60-Lab/unveil/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

var people = []struct {
	name  string
	bio   string
	age   int
	photo string
}{
	{"ada", "compilers and long walks", 31, "https://picsum.photos/seed/ada/600"},
	{"linus", "kernel hacker, bad at small talk", 34, "https://picsum.photos/seed/linus/600"},
	{"grace", "debugging since forever", 29, "https://picsum.photos/seed/grace/600"},
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}
	ctx := context.Background()

	users := repository.NewUserRepository(db)
	ids := make([]string, 0, len(people))
	for _, p := range people {
		u := &model.User{
			ID:          uuid.NewString(),
			Username:    p.name + "_" + uuid.NewString()[:4],
			DisplayName: p.name,
			Bio:         p.bio,
			Age:         p.age,
			PhotoURL:    p.photo,
		}
		u.Email = u.Username + "@dev.local"
		if err := u.SetPassword("password"); err != nil {
			panic(err)
		}
		if err := users.Create(ctx, u); err != nil {
			panic(err)
		}
		ids = append(ids, u.ID)
	}

	discovery := service.NewDiscoveryService(db, users, repository.NewLikeRepository(db),
		repository.NewMatchRepository(db), repository.NewConversationRepository(db),
		service.NewProfileCache(users, nil, 0))
	must(discovery.Like(ctx, ids[0], ids[1]))
	res := must(discovery.Like(ctx, ids[1], ids[0]))

	issuer := auth.NewIssuer(cfg.JWT)
	for i, p := range people {
		fmt.Printf("%-6s id=%s token=%s\n", p.name, ids[i], must(issuer.Issue(ids[i])))
	}
	fmt.Printf("conversation=%s\n", res.ConversationID)
}
