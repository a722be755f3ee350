package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/models"
	"trackd/internal/storage"
)

type sentNotification struct {
	kind  string
	to    string
	title string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) add(kind, to, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, to: to, title: title})
}

func (n *fakeNotifier) FriendRequest(ctx context.Context, from, to models.User) {
	n.add("friend_request", to.Email, "")
}

func (n *fakeNotifier) FriendAccepted(ctx context.Context, by, requester models.User) {
	n.add("friend_accepted", requester.Email, "")
}

func (n *fakeNotifier) Invitation(ctx context.Context, inviter models.User, email string) {
	n.add("invitation", email, "")
}

func (n *fakeNotifier) Suggestion(ctx context.Context, from, to models.User, s models.Suggestion) {
	n.add("suggestion", to.Email, s.Title)
}

type fixture struct {
	db          *gorm.DB
	users       storage.UserRepository
	friends     storage.FriendRepository
	invitations storage.InvitationRepository
	suggestions storage.SuggestionRepository
	watch       storage.WatchItemRepository
	notifier    *fakeNotifier

	friendSvc     FriendService
	suggestionSvc SuggestionService
	watchlistSvc  WatchlistService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.InitDB(config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		db:          db,
		users:       storage.NewGormUserRepository(db),
		friends:     storage.NewGormFriendRepository(db),
		invitations: storage.NewGormInvitationRepository(db),
		suggestions: storage.NewGormSuggestionRepository(db),
		watch:       storage.NewGormWatchItemRepository(db),
		notifier:    &fakeNotifier{},
	}
	f.friendSvc = NewFriendService(f.users, f.friends, f.invitations, f.notifier)
	f.suggestionSvc = NewSuggestionService(db, f.users, f.friends, f.suggestions, f.notifier)
	f.watchlistSvc = NewWatchlistService(f.watch)
	return f
}

func (f *fixture) user(t *testing.T, name, email string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, EmailVerified: true}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// befriend makes a and b accepted friends through the public operations.
func (f *fixture) befriend(t *testing.T, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.friendSvc.SendRequest(ctx, a.ID, b.Email); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	lists, _ := f.friendSvc.List(ctx, b.ID)
	if len(lists.Requests) != 1 {
		t.Fatalf("expected one incoming request, got %+v", lists)
	}
	if err := f.friendSvc.Accept(ctx, b.ID, lists.Requests[0].ID, "accept"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
}

func TestFriendRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "Alice", "alice@example.com")
	b := f.user(t, "Bob", "bob@example.com")

	msg, err := f.friendSvc.SendRequest(ctx, a.ID, "  BOB@example.com ")
	if err != nil || msg != MsgRequestSent {
		t.Fatalf("SendRequest = %q, %v", msg, err)
	}

	var count int64
	f.db.Model(&models.Friend{}).Count(&count)
	if count != 1 {
		t.Fatalf("friend rows = %d, want 1", count)
	}

	aLists, _ := f.friendSvc.List(ctx, a.ID)
	bLists, _ := f.friendSvc.List(ctx, b.ID)
	if len(aLists.SentRequests) != 1 || len(aLists.Requests) != 0 || len(aLists.Friends) != 0 {
		t.Fatalf("requester lists = %+v", aLists)
	}
	if len(bLists.Requests) != 1 || len(bLists.SentRequests) != 0 {
		t.Fatalf("recipient lists = %+v", bLists)
	}
	req := bLists.Requests[0]
	if req.RequesterID != a.ID || req.FriendID != a.ID || req.Name != "Alice" || req.Status != models.FriendStatusPending {
		t.Errorf("incoming entry = %+v", req)
	}
	if aLists.SentRequests[0].FriendID != b.ID {
		t.Errorf("outgoing entry = %+v", aLists.SentRequests[0])
	}

	// A repeat request in either direction is rejected.
	if _, err := f.friendSvc.SendRequest(ctx, a.ID, b.Email); !errors.Is(err, ErrFriendshipExists) {
		t.Errorf("repeat err = %v", err)
	}
	if _, err := f.friendSvc.SendRequest(ctx, b.ID, a.Email); !errors.Is(err, ErrFriendshipExists) {
		t.Errorf("reverse err = %v", err)
	}

	// Only the recipient can accept.
	if err := f.friendSvc.Accept(ctx, a.ID, req.ID, "accept"); !errors.Is(err, ErrFriendRequestMissing) {
		t.Errorf("requester accept err = %v", err)
	}
	if err := f.friendSvc.Accept(ctx, b.ID, req.ID, "accept"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := f.friendSvc.Accept(ctx, b.ID, req.ID, "accept"); !errors.Is(err, ErrFriendRequestMissing) {
		t.Errorf("second accept err = %v", err)
	}

	aLists, _ = f.friendSvc.List(ctx, a.ID)
	bLists, _ = f.friendSvc.List(ctx, b.ID)
	if len(aLists.Friends) != 1 || len(bLists.Friends) != 1 || len(aLists.SentRequests) != 0 || len(bLists.Requests) != 0 {
		t.Fatalf("after accept: a=%+v b=%+v", aLists, bLists)
	}
	if aLists.Friends[0].FriendID != b.ID || bLists.Friends[0].FriendID != a.ID {
		t.Error("friend entries should point at the other user")
	}

	if len(f.notifier.sent) != 2 || f.notifier.sent[0].kind != "friend_request" || f.notifier.sent[1].kind != "friend_accepted" || f.notifier.sent[1].to != a.Email {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}

	// Removal by either party hides the row from everyone.
	if err := f.friendSvc.Remove(ctx, b.ID, req.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	aLists, _ = f.friendSvc.List(ctx, a.ID)
	bLists, _ = f.friendSvc.List(ctx, b.ID)
	for _, l := range []*models.FriendLists{aLists, bLists} {
		if len(l.Friends)+len(l.Requests)+len(l.SentRequests) != 0 {
			t.Fatalf("row still visible: %+v", l)
		}
	}
	// Idempotent.
	if err := f.friendSvc.Remove(ctx, b.ID, req.ID); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestSendRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "Alice", "alice@example.com")

	cases := map[string]error{
		"":                  ErrInvalidEmail,
		"not-an-email":      ErrInvalidEmail,
		"ALICE@example.com": ErrCannotAddSelf,
	}
	for email, want := range cases {
		if _, err := f.friendSvc.SendRequest(ctx, a.ID, email); !errors.Is(err, want) {
			t.Errorf("SendRequest(%q) err = %v, want %v", email, err, want)
		}
	}
}

func TestAcceptValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "Alice", "alice@example.com")

	if err := f.friendSvc.Accept(ctx, a.ID, "", "accept"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing id err = %v", err)
	}
	if err := f.friendSvc.Accept(ctx, a.ID, "x", "reject"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad action err = %v", err)
	}
	if err := f.friendSvc.Accept(ctx, a.ID, "missing", "accept"); !errors.Is(err, ErrFriendRequestMissing) {
		t.Errorf("missing row err = %v", err)
	}
	if err := f.friendSvc.Remove(ctx, a.ID, ""); !errors.Is(err, ErrMissingID) {
		t.Errorf("Remove without id err = %v", err)
	}
}

func TestInvitationConvertedOnList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "Alice", "alice@example.com")

	msg, err := f.friendSvc.SendRequest(ctx, a.ID, "New@Example.com")
	if err != nil || msg != MsgInvitationSent {
		t.Fatalf("invite = %q, %v", msg, err)
	}
	if _, err := f.friendSvc.SendRequest(ctx, a.ID, "new@example.com"); !errors.Is(err, ErrInvitationExists) {
		t.Fatalf("repeat invite err = %v", err)
	}
	var invCount int64
	f.db.Model(&models.Invitation{}).Count(&invCount)
	if invCount != 1 {
		t.Fatalf("invitations = %d, want 1", invCount)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].kind != "invitation" || f.notifier.sent[0].to != "new@example.com" {
		t.Fatalf("notifications = %+v", f.notifier.sent)
	}

	n := f.user(t, "Newbie", "new@example.com")
	lists, err := f.friendSvc.List(ctx, n.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lists.Requests) != 1 || lists.Requests[0].RequesterID != a.ID {
		t.Fatalf("converted lists = %+v", lists)
	}
	f.db.Model(&models.Invitation{}).Count(&invCount)
	if invCount != 0 {
		t.Fatalf("invitation not deleted, count = %d", invCount)
	}

	// Listing again does not create a second row.
	lists, _ = f.friendSvc.List(ctx, n.ID)
	if len(lists.Requests) != 1 {
		t.Fatalf("second list = %+v", lists)
	}
}

func TestConvertInvitationsSkipsExistingPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "Alice", "alice@example.com")
	b := f.user(t, "Bob", "bob@example.com")

	f.friends.Create(ctx, &models.Friend{UserID: b.ID, FriendID: a.ID, Status: models.FriendStatusPending})
	f.invitations.Create(ctx, &models.Invitation{InviterID: a.ID, Email: b.Email})

	created, err := f.friendSvc.ConvertInvitations(ctx, b)
	if err != nil || created != 0 {
		t.Fatalf("ConvertInvitations = %d, %v", created, err)
	}
	var count int64
	f.db.Model(&models.Friend{}).Count(&count)
	if count != 1 {
		t.Fatalf("friend rows = %d, want 1", count)
	}
	pending, _ := f.invitations.ListPendingByEmail(ctx, b.Email)
	if len(pending) != 0 {
		t.Fatal("invitation should be consumed even when skipped")
	}
}

func TestSuggestionDismissAndAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	me := f.user(t, "Me", "me@example.com")
	friend := f.user(t, "Friend", "friend@example.com")
	f.befriend(t, me, friend)

	in := SuggestionInput{FriendID: friend.ID, TmdbID: "27205", MediaType: "movie", Title: "Inception", Year: "2010", Poster: "/p.jpg"}
	if _, err := f.suggestionSvc.Create(ctx, me.ID, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := f.suggestionSvc.List(ctx, friend.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	s := list[0]
	if s.FriendID != me.ID || s.FriendName != "Me" || s.MovieTitle != "Inception" || s.TmdbID != "27205" || s.Status != models.SuggestionStatusPending {
		t.Errorf("entry = %+v", s)
	}
	if s.Year == nil || *s.Year != "2010" || s.MoviePoster == nil || *s.MoviePoster != "/p.jpg" {
		t.Errorf("year/poster = %v %v", s.Year, s.MoviePoster)
	}
	if mine, _ := f.suggestionSvc.List(ctx, me.ID); len(mine) != 0 {
		t.Errorf("sender sees own suggestion: %+v", mine)
	}

	// Dismiss: gone from list, no watch item.
	if err := f.suggestionSvc.Update(ctx, friend.ID, SuggestionUpdate{ID: s.ID, Status: "dismissed"}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if list, _ := f.suggestionSvc.List(ctx, friend.ID); len(list) != 0 {
		t.Fatalf("dismissed still listed: %+v", list)
	}
	if items, _ := f.watchlistSvc.List(ctx, friend.ID); len(items) != 0 {
		t.Fatalf("dismiss created watch item: %+v", items)
	}
	// A processed suggestion cannot be processed again.
	if err := f.suggestionSvc.Update(ctx, friend.ID, SuggestionUpdate{ID: s.ID, Status: "accepted"}); !errors.Is(err, ErrSuggestionNotFound) {
		t.Fatalf("re-process err = %v", err)
	}

	// Accept as watched.
	f.suggestionSvc.Create(ctx, me.ID, in)
	list, _ = f.suggestionSvc.List(ctx, friend.ID)
	if err := f.suggestionSvc.Update(ctx, me.ID, SuggestionUpdate{ID: list[0].ID, Status: "accepted"}); !errors.Is(err, ErrSuggestionNotFound) {
		t.Fatalf("sender accept err = %v", err)
	}
	if err := f.suggestionSvc.Update(ctx, friend.ID, SuggestionUpdate{ID: list[0].ID, Status: "accepted", Watched: true}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if list, _ := f.suggestionSvc.List(ctx, friend.ID); len(list) != 0 {
		t.Fatalf("accepted still listed: %+v", list)
	}
	items, _ := f.watchlistSvc.List(ctx, friend.ID)
	if len(items) != 1 || items[0].TmdbID != "27205" || items[0].Status != models.WatchStatusWatched || items[0].Title != "Inception" {
		t.Fatalf("watch items = %+v", items)
	}

	kinds := map[string]int{}
	for _, n := range f.notifier.sent {
		kinds[n.kind]++
	}
	if kinds["suggestion"] != 2 {
		t.Errorf("suggestion notifications = %d", kinds["suggestion"])
	}
}

func TestSuggestionAcceptDefaultsToWatchLater(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	me := f.user(t, "Me", "me@example.com")
	friend := f.user(t, "Friend", "friend@example.com")
	f.befriend(t, me, friend)

	f.suggestionSvc.Create(ctx, me.ID, SuggestionInput{FriendID: friend.ID, TmdbID: "1399", MediaType: "tv", Title: "Game of Thrones"})
	list, _ := f.suggestionSvc.List(ctx, friend.ID)
	if err := f.suggestionSvc.Update(ctx, friend.ID, SuggestionUpdate{ID: list[0].ID, Status: "accepted"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	items, _ := f.watchlistSvc.List(ctx, friend.ID)
	if len(items) != 1 || items[0].Status != models.WatchStatusWatchLater || items[0].MediaType != models.MediaTypeTV {
		t.Fatalf("items = %+v", items)
	}
}

func TestSuggestionCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	me := f.user(t, "Me", "me@example.com")
	stranger := f.user(t, "Stranger", "stranger@example.com")

	cases := []struct {
		name string
		in   SuggestionInput
		want error
	}{
		{"missing title", SuggestionInput{FriendID: stranger.ID, TmdbID: "1"}, ErrMissingFields},
		{"missing tmdb", SuggestionInput{FriendID: stranger.ID, Title: "x"}, ErrMissingFields},
		{"missing friend", SuggestionInput{TmdbID: "1", Title: "x"}, ErrMissingFields},
		{"bad media", SuggestionInput{FriendID: stranger.ID, TmdbID: "1", Title: "x", MediaType: "book"}, ErrInvalidMediaType},
		{"self", SuggestionInput{FriendID: me.ID, TmdbID: "1", Title: "x"}, ErrSuggestToSelf},
		{"not friends", SuggestionInput{FriendID: stranger.ID, TmdbID: "1", Title: "x"}, ErrNotFriends},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.suggestionSvc.Create(ctx, me.ID, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if err := f.suggestionSvc.Update(ctx, me.ID, SuggestionUpdate{ID: "x", Status: "pending"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad status err = %v", err)
	}
}

func TestSuggestionInputAcceptsNumericIDs(t *testing.T) {
	var in SuggestionInput
	if err := json.Unmarshal([]byte(`{"friendId":"f","tmdbId":27205,"title":"Inception","year":2010}`), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.TmdbID != "27205" || in.Year != "2010" {
		t.Errorf("in = %+v", in)
	}
}

func TestWatchlistAddRateAndWatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "U", "u@example.com")

	items, err := f.watchlistSvc.List(ctx, u.ID)
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("empty List = %#v, %v", items, err)
	}

	var in WatchItemInput
	json.Unmarshal([]byte(`{"id":603,"media_type":"movie","title":"The Matrix","release_date":"1999-03-30","poster_path":"/m.jpg"}`), &in)
	item, created, err := f.watchlistSvc.Add(ctx, u.ID, in)
	if err != nil || !created {
		t.Fatalf("Add = %v, %v", created, err)
	}
	if item.TmdbID != "603" || item.Year == nil || *item.Year != "1999" || item.Status != models.WatchStatusWatchLater {
		t.Fatalf("item = %+v", item)
	}

	// Duplicate add returns the existing row.
	again, created, err := f.watchlistSvc.Add(ctx, u.ID, in)
	if err != nil || created || again.ID != item.ID {
		t.Fatalf("duplicate Add = %+v, %v, %v", again, created, err)
	}

	five := 5
	if err := f.watchlistSvc.Update(ctx, u.ID, WatchItemUpdate{TmdbID: "603", Rating: &five}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	watched := "watched"
	if err := f.watchlistSvc.Update(ctx, u.ID, WatchItemUpdate{TmdbID: "603", Status: &watched}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	items, _ = f.watchlistSvc.List(ctx, u.ID)
	if len(items) != 1 || items[0].Rating == nil || *items[0].Rating != 5 || items[0].Status != models.WatchStatusWatched {
		t.Fatalf("items = %+v", items)
	}

	zero := 0
	f.watchlistSvc.Update(ctx, u.ID, WatchItemUpdate{TmdbID: "603", Rating: &zero})
	items, _ = f.watchlistSvc.List(ctx, u.ID)
	if items[0].Rating != nil {
		t.Fatalf("rating not cleared: %v", *items[0].Rating)
	}

	if err := f.watchlistSvc.Remove(ctx, u.ID, "603"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	items, _ = f.watchlistSvc.List(ctx, u.ID)
	if len(items) != 0 {
		t.Fatalf("items after remove = %+v", items)
	}
}

func TestWatchlistAddTVAndExplicitStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "U", "u@example.com")

	var in WatchItemInput
	json.Unmarshal([]byte(`{"id":"1399","media_type":"tv","name":"Game of Thrones","first_air_date":"2011-04-17","watched":true}`), &in)
	item, _, err := f.watchlistSvc.Add(ctx, u.ID, in)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.Title != "Game of Thrones" || item.MediaType != models.MediaTypeTV || *item.Year != "2011" || item.Status != models.WatchStatusWatched || item.Poster != nil {
		t.Fatalf("item = %+v", item)
	}
}

func TestWatchlistValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "U", "u@example.com")
	other := f.user(t, "O", "o@example.com")

	if _, _, err := f.watchlistSvc.Add(ctx, u.ID, WatchItemInput{Title: "x"}); !errors.Is(err, ErrMissingTmdbID) {
		t.Errorf("missing id err = %v", err)
	}
	if _, _, err := f.watchlistSvc.Add(ctx, u.ID, WatchItemInput{ID: "1"}); !errors.Is(err, ErrMissingTitle) {
		t.Errorf("missing title err = %v", err)
	}
	if _, _, err := f.watchlistSvc.Add(ctx, u.ID, WatchItemInput{ID: "1", Title: "x", Status: "wishlist"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bad status err = %v", err)
	}

	f.watchlistSvc.Add(ctx, u.ID, WatchItemInput{ID: "1", Title: "x"})

	six := 6
	if err := f.watchlistSvc.Update(ctx, u.ID, WatchItemUpdate{TmdbID: "1", Rating: &six}); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 6 err = %v", err)
	}
	if err := f.watchlistSvc.Update(ctx, u.ID, WatchItemUpdate{TmdbID: "1"}); !errors.Is(err, ErrNothingToApply) {
		t.Errorf("empty update err = %v", err)
	}
	three := 3
	if err := f.watchlistSvc.Update(ctx, other.ID, WatchItemUpdate{TmdbID: "1", Rating: &three}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("other user's update err = %v", err)
	}
	if err := f.watchlistSvc.Remove(ctx, u.ID, " "); !errors.Is(err, ErrMissingTmdbID) {
		t.Errorf("remove without id err = %v", err)
	}
}

type memBlacklist map[string]time.Time

func (b memBlacklist) Add(ctx context.Context, jti string, exp time.Time) error {
	b[jti] = exp
	return nil
}

func (b memBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	_, ok := b[jti]
	return ok, nil
}

func TestAuthSignInUpsertsAndConvertsInvitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inviter := f.user(t, "Inviter", "inviter@example.com")
	f.friendSvc.SendRequest(ctx, inviter.ID, "new@example.com")

	bl := memBlacklist{}
	cfg := config.AuthConfig{JWTSecretKey: "s", JWTExpiry: time.Hour}
	svc := NewAuthService(f.users, f.friendSvc, bl, cfg)

	token, exp, user, err := svc.SignIn(ctx, auth.Identity{Subject: "sub-1", Email: "New@Example.com", EmailVerified: true, Name: "Newbie", Picture: "https://img"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.Email != "new@example.com" || user.Name != "Newbie" || user.OIDCSubject == nil || *user.OIDCSubject != "sub-1" {
		t.Fatalf("user = %+v", user)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry = %v", exp)
	}

	lists, _ := f.friendSvc.List(ctx, user.ID)
	if len(lists.Requests) != 1 || lists.Requests[0].RequesterID != inviter.ID {
		t.Fatalf("invitation not converted on sign-in: %+v", lists)
	}

	// Second sign-in finds the same user by subject and refreshes the profile.
	_, _, again, err := svc.SignIn(ctx, auth.Identity{Subject: "sub-1", Email: "new@example.com", Name: "Renamed"})
	if err != nil || again.ID != user.ID || again.Name != "Renamed" || again.Image != "https://img" {
		t.Fatalf("second SignIn = %+v, %v", again, err)
	}

	claims, err := auth.ValidateToken(ctx, token, cfg.JWTSecretKey, bl)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := auth.ValidateToken(ctx, token, cfg.JWTSecretKey, bl); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("token after logout err = %v", err)
	}

	if _, _, _, err := svc.SignIn(ctx, auth.Identity{Subject: "sub-2"}); !errors.Is(err, ErrIdentityMissingEmail) {
		t.Errorf("missing email err = %v", err)
	}
}

func TestAuthSignInLinksExistingEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := f.user(t, "Existing", "existing@example.com")
	svc := NewAuthService(f.users, f.friendSvc, nil, config.AuthConfig{JWTSecretKey: "s", JWTExpiry: time.Hour})

	_, _, user, err := svc.SignIn(ctx, auth.Identity{Subject: "sub-x", Email: "existing@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.ID != existing.ID || user.Name != "Existing" {
		t.Fatalf("user = %+v, want linked existing row", user)
	}
	if err := svc.Logout(ctx, nil); err != nil {
		t.Fatalf("Logout without blacklist: %v", err)
	}
}

func TestAuthSignInRejectsUnverifiedEmailLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.users, f.friendSvc, nil, config.AuthConfig{JWTSecretKey: "s", JWTExpiry: time.Hour})

	_, _, owner, err := svc.SignIn(ctx, auth.Identity{Subject: "owner-sub", Email: "alice@example.com", EmailVerified: true, Name: "Alice"})
	if err != nil {
		t.Fatalf("SignIn owner: %v", err)
	}

	token, _, user, err := svc.SignIn(ctx, auth.Identity{Subject: "other-sub", Email: "alice@example.com", Name: "Mallory"})
	if !errors.Is(err, ErrEmailNotVerified) || token != "" || user != nil {
		t.Fatalf("unverified link = %q, %+v, %v", token, user, err)
	}

	stored, err := f.users.GetByID(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Name != "Alice" || stored.OIDCSubject == nil || *stored.OIDCSubject != "owner-sub" {
		t.Fatalf("owner modified: %+v", stored)
	}

	// The owner's own subject cannot switch to an unverified address either.
	_, _, again, err := svc.SignIn(ctx, auth.Identity{Subject: "owner-sub", Email: "elsewhere@example.com"})
	if err != nil || again.Email != "alice@example.com" || !again.EmailVerified {
		t.Fatalf("unverified email change = %+v, %v", again, err)
	}
}

func TestUnverifiedUserCannotClaimInvitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inviter := f.user(t, "Inviter", "inviter@example.com")
	if _, err := f.friendSvc.SendRequest(ctx, inviter.ID, "pending@example.com"); err != nil {
		t.Fatalf("invite: %v", err)
	}

	svc := NewAuthService(f.users, f.friendSvc, nil, config.AuthConfig{JWTSecretKey: "s", JWTExpiry: time.Hour})
	_, _, user, err := svc.SignIn(ctx, auth.Identity{Subject: "unverified-sub", Email: "pending@example.com"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.EmailVerified {
		t.Fatal("user should not be marked verified")
	}

	lists, err := f.friendSvc.List(ctx, user.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lists.Requests) != 0 {
		t.Fatalf("unverified user claimed invitation: %+v", lists.Requests)
	}
	if pending, _ := f.invitations.ListPendingByEmail(ctx, "pending@example.com"); len(pending) != 1 {
		t.Fatalf("invitation consumed, pending = %d", len(pending))
	}
}

func TestUserServiceProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "U", "u@example.com")
	svc := NewUserService(f.users)

	got, err := svc.GetUserProfile(ctx, u.ID)
	if err != nil || got.Email != "u@example.com" {
		t.Fatalf("GetUserProfile = %+v, %v", got, err)
	}
	if _, err := svc.GetUserProfile(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing err = %v", err)
	}
}
