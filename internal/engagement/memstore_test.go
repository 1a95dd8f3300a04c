package engagement

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// --- インメモリのドキュメントストア ---
// RunInTxは状態のコピーに対してfnを実行し、成功時のみ置き換える。
// mutexでトランザクション全体を直列化するため、実DBのSERIALIZABLEと同じ結果になる。

type markerKey struct {
	ref     model.ItemRef
	kind    model.MarkerKind
	actorID string
}

type memState struct {
	items   map[model.ItemRef]*model.Item
	markers map[markerKey]time.Time
	users   map[string]*model.User
}

func (s *memState) clone() *memState {
	c := &memState{
		items:   make(map[model.ItemRef]*model.Item, len(s.items)),
		markers: make(map[markerKey]time.Time, len(s.markers)),
		users:   make(map[string]*model.User, len(s.users)),
	}
	for k, v := range s.items {
		item := *v
		c.items[k] = &item
	}
	for k, v := range s.markers {
		c.markers[k] = v
	}
	for k, v := range s.users {
		c.users[k] = cloneUser(v)
	}
	return c
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Following = slices.Clone(u.Following)
	return &c
}

type memStore struct {
	mu    sync.Mutex
	state *memState
	txs   int

	// txErr が設定されている場合、RunInTxはfnを実行せずにこのエラーを返す
	txErr error
	// readErr が設定されている場合、トランザクション外の読み取りがこのエラーを返す
	readErr error
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		items:   map[model.ItemRef]*model.Item{},
		markers: map[markerKey]time.Time{},
		users:   map[string]*model.User{},
	}}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++
	if m.txErr != nil {
		return m.txErr
	}
	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) Counters() repository.CounterRepository {
	return &memCounterRepo{st: m.state, err: m.readErr}
}
func (m *memStore) Markers() repository.MarkerRepository {
	return &memMarkerRepo{st: m.state, err: m.readErr}
}
func (m *memStore) Users() repository.UserRepository {
	return &memUserRepo{st: m.state, err: m.readErr}
}

// テスト用のシード・検査ヘルパー

func (m *memStore) putPost(id string) {
	m.state.items[model.PostRef(id)] = &model.Item{Ref: model.PostRef(id)}
}

func (m *memStore) putComment(postID, commentID string) {
	ref := model.CommentRef(postID, commentID)
	m.state.items[ref] = &model.Item{Ref: ref}
}

func (m *memStore) putUser(id string) {
	m.state.users[id] = &model.User{ID: id}
}

func (m *memStore) item(ref model.ItemRef) *model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.items[ref]
}

func (m *memStore) user(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.users[id]
}

func (m *memStore) hasMarker(ref model.ItemRef, kind model.MarkerKind, actorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.markers[markerKey{ref, kind, actorID}]
	return ok
}

type memTx struct {
	st *memState
}

func (t *memTx) Counters() repository.CounterRepository { return &memCounterRepo{st: t.st} }
func (t *memTx) Markers() repository.MarkerRepository   { return &memMarkerRepo{st: t.st} }
func (t *memTx) Users() repository.UserRepository       { return &memUserRepo{st: t.st} }

type memCounterRepo struct {
	st  *memState
	err error
}

func (r *memCounterRepo) FindItem(ctx context.Context, ref model.ItemRef) (*model.Item, error) {
	if r.err != nil {
		return nil, r.err
	}
	item, ok := r.st.items[ref]
	if !ok {
		return nil, nil
	}
	c := *item
	return &c, nil
}

func (r *memCounterRepo) Increment(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) (bool, error) {
	item, ok := r.st.items[ref]
	if !ok {
		return false, nil
	}
	addCounter(item, field, delta)
	return true, nil
}

func (r *memCounterRepo) InitializeOrIncrement(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) error {
	item, ok := r.st.items[ref]
	if !ok {
		item = &model.Item{Ref: ref}
		r.st.items[ref] = item
	}
	addCounter(item, field, delta)
	return nil
}

func addCounter(item *model.Item, field model.CounterField, delta int64) {
	var p *int64
	switch field {
	case model.FieldViews:
		p = &item.Views
	case model.FieldLikeCount:
		p = &item.LikeCount
	case model.FieldDislikeCount:
		p = &item.DislikeCount
	case model.FieldCommentCount:
		p = &item.CommentCount
	case model.FieldReplyCount:
		p = &item.ReplyCount
	default:
		return
	}
	*p = max(*p+delta, 0)
}

type memMarkerRepo struct {
	st  *memState
	err error
}

func (r *memMarkerRepo) Find(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (*model.Marker, error) {
	if r.err != nil {
		return nil, r.err
	}
	at, ok := r.st.markers[markerKey{ref, kind, actorID}]
	if !ok {
		return nil, nil
	}
	return &model.Marker{Item: ref, Kind: kind, ActorID: actorID, MarkedAt: at}, nil
}

func (r *memMarkerRepo) Exists(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.st.markers[markerKey{ref, kind, actorID}]
	return ok, nil
}

func (r *memMarkerRepo) Create(ctx context.Context, m *model.Marker) (bool, error) {
	k := markerKey{m.Item, m.Kind, m.ActorID}
	if _, ok := r.st.markers[k]; ok {
		return false, nil
	}
	r.st.markers[k] = m.MarkedAt
	return true, nil
}

func (r *memMarkerRepo) Upsert(ctx context.Context, m *model.Marker) error {
	r.st.markers[markerKey{m.Item, m.Kind, m.ActorID}] = m.MarkedAt
	return nil
}

func (r *memMarkerRepo) Delete(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error) {
	k := markerKey{ref, kind, actorID}
	if _, ok := r.st.markers[k]; !ok {
		return false, nil
	}
	delete(r.st.markers, k)
	return true, nil
}

type memUserRepo struct {
	st  *memState
	err error
}

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.st.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *memUserRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *memUserRepo) UpdateFollowEdges(ctx context.Context, u *model.User) error {
	r.st.users[u.ID] = cloneUser(u)
	return nil
}

var _ repository.Transactor = (*memStore)(nil)
