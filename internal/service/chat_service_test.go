package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/unveil/internal/gate"
	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/reveal"
	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/database"
)

type recordedEvent struct {
	room      string
	eventType string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Broadcast(room, eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{room: room, eventType: eventType, payload: payload})
}

func (p *recordingPublisher) snapshot() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

type chatFixture struct {
	db    *gorm.DB
	svc   ChatService
	pub   *recordingPublisher
	conv  *model.Conversation
	alice *model.User
	bob   *model.User
	eve   *model.User
	rdb   *redis.Client
	cache *ProfileCache
}

func seedUser(t *testing.T, db *gorm.DB, name, photo string) *model.User {
	t.Helper()
	u := &model.User{
		ID:          uuid.NewString(),
		Username:    name,
		Email:       name + "@example.com",
		Password:    "x",
		DisplayName: strings.ToUpper(name[:1]) + name[1:],
		PhotoURL:    photo,
	}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func newChatFixture(t *testing.T, minInterval time.Duration) *chatFixture {
	t.Helper()
	db := database.OpenTest(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &chatFixture{db: db, pub: &recordingPublisher{}, rdb: rdb}
	f.alice = seedUser(t, db, "alice", "https://img.example.com/alice.jpg")
	f.bob = seedUser(t, db, "bob", "https://img.example.com/bob.jpg")
	f.eve = seedUser(t, db, "eve", "")

	convs := repository.NewConversationRepository(db)
	f.conv = &model.Conversation{ID: uuid.NewString(), User1ID: f.alice.ID, User2ID: f.bob.ID}
	require.NoError(t, convs.Create(context.Background(), f.conv))

	f.cache = NewProfileCache(repository.NewUserRepository(db), rdb, time.Minute)
	f.svc = NewChatService(db, convs, repository.NewMessageRepository(db), f.cache,
		gate.New(gate.Options{MinInterval: minInterval, TaskTimeout: 5 * time.Second}),
		reveal.Default(), f.pub, ChatOptions{MaxContentLength: 20, MaxVoiceDuration: time.Minute})
	return f
}

func (f *chatFixture) sendN(t *testing.T, n int) []*SendResult {
	t.Helper()
	res := make([]*SendResult, 0, n)
	for i := 0; i < n; i++ {
		sender := f.alice.ID
		if i%2 == 1 {
			sender = f.bob.ID
		}
		r, err := f.svc.SendText(context.Background(), f.conv.ID, sender, "hi")
		require.NoError(t, err, "send %d", i+1)
		res = append(res, r)
	}
	return res
}

func TestSendTextUnlocksFirstChapterOnTenthMessage(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	results := f.sendN(t, 10)
	for i, r := range results[:9] {
		assert.False(t, r.ChapterChanged, "message %d", i+1)
		assert.Nil(t, r.SystemMessage)
		assert.Equal(t, i+1, r.TextMessageCount)
		assert.Equal(t, 0, r.RevealLevel)
	}

	tenth := results[9]
	assert.True(t, tenth.ChapterChanged)
	assert.Equal(t, 10, tenth.TextMessageCount)
	assert.Equal(t, 1, tenth.RevealLevel)
	assert.Equal(t, 30, tenth.NextThreshold)
	require.NotNil(t, tenth.SystemMessage)
	assert.Equal(t, model.MessageTypeSystem, tenth.SystemMessage.Type)
	assert.Equal(t, reveal.Label(1), tenth.SystemMessage.Content)
	assert.True(t, tenth.SystemMessage.CreatedAt.After(tenth.Message.CreatedAt))

	conv, err := repository.NewConversationRepository(f.db).GetByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, conv.TextMessageCount)
	assert.Equal(t, 1, conv.RevealLevel)
	require.NotNil(t, conv.Chapter1UnlockedAt)
	assert.True(t, conv.Chapter1UnlockedAt.Equal(tenth.Message.CreatedAt))
	assert.Nil(t, conv.Chapter2UnlockedAt)

	// 第 11 条不再触发章节
	r, err := f.svc.SendText(ctx, f.conv.ID, f.alice.ID, "again")
	require.NoError(t, err)
	assert.False(t, r.ChapterChanged)
	assert.Equal(t, 11, r.TextMessageCount)
	assert.Equal(t, 1, r.RevealLevel)

	page, err := f.svc.GetMessages(ctx, f.conv.ID, f.bob.ID, 100, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 12)
	assert.Equal(t, model.MessageTypeSystem, page.Messages[10].Type)
	assert.Equal(t, tenth.SystemMessage.ID, page.Messages[10].ID)
}

func TestSendTextBroadcastsInCommitOrder(t *testing.T) {
	f := newChatFixture(t, 0)
	results := f.sendN(t, 3)

	events := f.pub.snapshot()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, f.conv.ID, ev.room)
		assert.Equal(t, EventNewMessage, ev.eventType)
		got, ok := ev.payload.(*SendResult)
		require.True(t, ok)
		assert.Equal(t, results[i].Message.ID, got.Message.ID)
	}
}

func TestSendTextValidation(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.SendText(ctx, f.conv.ID, f.alice.ID, "   \n\t ")
	assert.ErrorIs(t, err, apperr.ErrEmptyContent)

	_, err = f.svc.SendText(ctx, f.conv.ID, f.alice.ID, strings.Repeat("a", 21))
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	// 按字符而不是字节计数
	r, err := f.svc.SendText(ctx, f.conv.ID, f.alice.ID, strings.Repeat("好", 20))
	require.NoError(t, err)
	assert.Equal(t, 1, r.TextMessageCount)

	r, err = f.svc.SendText(ctx, f.conv.ID, f.alice.ID, "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", r.Message.Content)

	_, err = f.svc.SendText(ctx, "missing", f.alice.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrConversationNotFound)
}

func TestNonParticipantCannotMutateOrRead(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.SendText(ctx, f.conv.ID, f.eve.ID, "hello")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	_, err = f.svc.SendVoice(ctx, f.conv.ID, f.eve.ID, "https://a.example.com/v.ogg", 3)
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	_, err = f.svc.GetMessages(ctx, f.conv.ID, f.eve.ID, 10, "")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	_, err = f.svc.GetConversation(ctx, f.conv.ID, f.eve.ID)
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	_, err = f.svc.Progression(ctx, f.conv.ID, f.eve.ID)
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	var cnt int64
	require.NoError(t, f.db.Model(&model.Message{}).Count(&cnt).Error)
	assert.Zero(t, cnt)
	conv, err := repository.NewConversationRepository(f.db).GetByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.TextMessageCount)
	assert.Nil(t, conv.LastMessageAt)
	assert.Empty(t, f.pub.snapshot())
}

func TestVoiceMessagesDoNotAdvanceProgression(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		m, err := f.svc.SendVoice(ctx, f.conv.ID, f.bob.ID, "https://a.example.com/v.ogg", 5)
		require.NoError(t, err)
		assert.Equal(t, model.MessageTypeVoice, m.Type)
		assert.Equal(t, 5, m.AudioDuration)
	}
	p, err := f.svc.Progression(ctx, f.conv.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, p.TextMessageCount)
	assert.Zero(t, p.RevealLevel)
	assert.Equal(t, 10, p.NextThreshold)

	_, err = f.svc.SendVoice(ctx, f.conv.ID, f.bob.ID, "", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidAudio)
	_, err = f.svc.SendVoice(ctx, f.conv.ID, f.bob.ID, "https://a.example.com/v.ogg", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidDuration)
	_, err = f.svc.SendVoice(ctx, f.conv.ID, f.bob.ID, "https://a.example.com/v.ogg", 61)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	conv, err := repository.NewConversationRepository(f.db).GetByID(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.NotNil(t, conv.LastMessageAt)
}

func TestGetMessagesPaginatesWithoutGapsOrDuplicates(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	sent := f.sendN(t, 25)
	want := make([]string, 0, 26)
	for _, r := range sent {
		want = append(want, r.Message.ID)
		if r.SystemMessage != nil {
			want = append(want, r.SystemMessage.ID)
		}
	}
	require.Len(t, want, 26)

	var pages [][]*model.Message
	cursor := ""
	for {
		page, err := f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, 7, cursor)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Messages), 7)
		for i := 1; i < len(page.Messages); i++ {
			assert.True(t, page.Messages[i-1].CreatedAt.Before(page.Messages[i].CreatedAt))
		}
		pages = append(pages, page.Messages)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
		require.Less(t, len(pages), 10)
	}

	// 页面由新到旧返回，每页内部由旧到新
	var got []string
	for i := len(pages) - 1; i >= 0; i-- {
		for _, m := range pages[i] {
			got = append(got, m.ID)
		}
	}
	assert.Equal(t, want, got)
}

func TestGetMessagesLimitsAndCursor(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()
	f.sendN(t, 3)

	page, err := f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, -5, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	require.NotNil(t, page.NextCursor)

	page, err = f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, 0, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)
	assert.Nil(t, page.NextCursor)

	page, err = f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, 1000, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)

	_, err = f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, 10, "yesterday")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	// 非 UTC 时区的游标按同一时刻处理
	last := page.Messages[2].CreatedAt.In(time.FixedZone("UTC+8", 8*3600)).Format(time.RFC3339Nano)
	page, err = f.svc.GetMessages(ctx, f.conv.ID, f.alice.ID, 10, last)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)

	empty := newChatFixture(t, 0)
	page, err = empty.svc.GetMessages(ctx, empty.conv.ID, empty.bob.ID, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Nil(t, page.NextCursor)
}

func TestConcurrentSendsAreCountedExactlyOnce(t *testing.T) {
	f := newChatFixture(t, 0)
	const k = 20

	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := f.alice.ID
			if i%2 == 0 {
				sender = f.bob.ID
			}
			_, err := f.svc.SendText(context.Background(), f.conv.ID, sender, "ping")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := f.svc.Progression(context.Background(), f.conv.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, k, p.TextMessageCount)
	assert.Equal(t, 1, p.RevealLevel)

	var systems int64
	require.NoError(t, f.db.Model(&model.Message{}).
		Where("conversation_id = ? AND type = ?", f.conv.ID, model.MessageTypeSystem).
		Count(&systems).Error)
	assert.EqualValues(t, 1, systems)

	changed := 0
	for _, ev := range f.pub.snapshot() {
		if ev.payload.(*SendResult).ChapterChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}

func TestSendTextThrottlesPerConversation(t *testing.T) {
	f := newChatFixture(t, 40*time.Millisecond)

	start := time.Now()
	f.sendN(t, 3)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestGetConversationGatesCounterpartPhoto(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	view, err := f.svc.GetConversation(ctx, f.conv.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, view.Me.ID)
	require.NotNil(t, view.Me.PhotoURL)
	assert.Equal(t, f.alice.PhotoURL, *view.Me.PhotoURL)
	assert.Equal(t, f.bob.ID, view.Counterpart.ID)
	assert.True(t, view.Counterpart.PhotoHidden)
	assert.Nil(t, view.Counterpart.PhotoURL)
	assert.Len(t, view.ChapterUnlocks, reveal.MaxLevel)
	assert.Equal(t, reveal.Label(0), view.Progression.ChapterLabel)

	f.sendN(t, 10)
	view, err = f.svc.GetConversation(ctx, f.conv.ID, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, view.Counterpart.PhotoHidden)
	assert.Equal(t, 40, view.Counterpart.PhotoBlur)
	require.NotNil(t, view.Counterpart.PhotoURL)
	assert.Equal(t, f.bob.PhotoURL, *view.Counterpart.PhotoURL)
	assert.NotNil(t, view.ChapterUnlocks[0])
	assert.Nil(t, view.ChapterUnlocks[1])

	// 第二次读取走缓存
	f.cache.ResetCounters()
	_, err = f.svc.GetConversation(ctx, f.conv.ID, f.bob.ID)
	require.NoError(t, err)
	c := f.cache.Counters()
	assert.EqualValues(t, 2, c.Hits)
	assert.Zero(t, c.BulkLoads)

	list, err := f.svc.ListConversations(ctx, f.bob.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.conv.ID, list[0].ID)
	assert.Equal(t, 10, list[0].Progression.TextMessageCount)
}

func TestEightiethMessageRevealsEverything(t *testing.T) {
	f := newChatFixture(t, 0)
	results := f.sendN(t, 80)

	changedAt := []int{}
	for i, r := range results {
		if r.ChapterChanged {
			changedAt = append(changedAt, i+1)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, r.RevealLevel, results[i-1].RevealLevel)
		}
	}
	assert.Equal(t, []int{10, 30, 50, 80}, changedAt)

	last := results[79]
	assert.Equal(t, reveal.MaxLevel, last.RevealLevel)
	assert.Zero(t, last.NextThreshold)

	conv, err := repository.NewConversationRepository(f.db).GetByID(context.Background(), f.conv.ID)
	require.NoError(t, err)
	for n := 1; n <= reveal.MaxLevel; n++ {
		require.NotNil(t, conv.ChapterUnlockedAt(n), "chapter %d", n)
	}
	// 解锁时间只写一次
	assert.True(t, conv.Chapter1UnlockedAt.Equal(results[9].Message.CreatedAt))

	view, err := f.svc.GetConversation(context.Background(), f.conv.ID, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, view.Counterpart.PhotoHidden)
	assert.Zero(t, view.Counterpart.PhotoBlur)
}

func TestVoiceThenTextCountsOnlyText(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.SendVoice(ctx, f.conv.ID, f.alice.ID, "https://a.example.com/v.ogg", 1)
		require.NoError(t, err)
	}
	r, err := f.svc.SendText(ctx, f.conv.ID, f.bob.ID, "finally words")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TextMessageCount)
}

func TestDifferentConversationsDoNotBlockEachOther(t *testing.T) {
	f := newChatFixture(t, 0)
	ctx := context.Background()

	other := &model.Conversation{ID: uuid.NewString(), User1ID: f.alice.ID, User2ID: f.eve.ID}
	require.NoError(t, repository.NewConversationRepository(f.db).Create(ctx, other))

	const k = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*k)
	for i := 0; i < k; i++ {
		for _, convID := range []string{f.conv.ID, other.ID} {
			wg.Add(1)
			go func(convID string) {
				defer wg.Done()
				_, err := f.svc.SendText(ctx, convID, f.alice.ID, "hey")
				errs <- err
			}(convID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, convID := range []string{f.conv.ID, other.ID} {
		p, err := f.svc.Progression(ctx, convID, f.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, k, p.TextMessageCount)
		assert.Equal(t, 1, p.RevealLevel)
	}
}
