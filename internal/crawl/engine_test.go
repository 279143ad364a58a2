package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InhaCentury20/pass/internal/checkpoint"
	"github.com/InhaCentury20/pass/internal/fetcher"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/pipeline"
)

// board serves a two-page list with posts numbered 5..1. Titles of the posts
// listed in plain carry no notice marker; posts listed in broken answer 500.
type board struct {
	mu      sync.Mutex
	plain   map[string]bool
	broken  map[string]bool
	lists   []string
	details []string
}

func (b *board) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.URL.Path {
		case "/list.json":
			assert.NoError(t, r.ParseForm())
			page := r.PostForm.Get("pageIndex")
			b.lists = append(b.lists, page)
			if page == "1" {
				fmt.Fprint(w, `{"resultList":[`+b.row("b5")+`,`+b.row("b4")+`,`+b.row("b3")+`],
					"pagingInfo":{"totRow":5,"rowStart":0,"pageIndex":1,"totPage":2}}`)
				return
			}
			fmt.Fprint(w, `{"resultList":[`+b.row("b2")+`,`+b.row("b1")+`],
				"pagingInfo":{"totRow":5,"rowStart":3,"pageIndex":2,"totPage":2}}`)
		case "/view.do":
			id := r.URL.Query().Get("boardId")
			b.details = append(b.details, id)
			if b.broken[id] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `<html><body><div class="view_cont"><p>보증금 5,000만원</p></div></body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (b *board) row(id string) string {
	title := id + " 입주자 모집공고"
	if b.plain[id] {
		title = id + " 설명회 안내"
	}
	return fmt.Sprintf(`{"boardId":%q,"nttSj":%q}`, id, title)
}

// fakeRepo doubles as the checkpoint sink: its maximum counts visited
// announcements only.
type fakeRepo struct {
	mu        sync.Mutex
	saved     []int64
	visited   []int64
	failOn    int64
	failVisit int64
}

func (r *fakeRepo) UpsertAnnouncement(_ context.Context, a *model.Announcement) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *a.ListingNumber == r.failOn {
		return 0, errors.New("connection reset")
	}
	r.saved = append(r.saved, *a.ListingNumber)
	return 100 + *a.ListingNumber, nil
}

func (r *fakeRepo) MarkVisited(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id-100 == r.failVisit {
		return errors.New("connection reset")
	}
	r.visited = append(r.visited, id-100)
	return nil
}

func (r *fakeRepo) MaxListingNumber(context.Context) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.visited) == 0 {
		return nil, nil
	}
	top := slices.Max(r.visited)
	return &top, nil
}

type fakeProcessor struct {
	errs      map[int64]error
	processed []int64
}

func (p *fakeProcessor) Process(_ context.Context, a *model.Announcement) error {
	p.processed = append(p.processed, *a.ListingNumber)
	return p.errs[*a.ListingNumber]
}

type harness struct {
	board  *board
	client *Client
	store  *checkpoint.FileStore
	repo   *fakeRepo
	proc   *fakeProcessor
	engine *Engine
}

func newHarness(t *testing.T, b *board, opts Options) *harness {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	client := NewClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RequestsPerSecond: 1000}), ClientOptions{
		ListURL:   srv.URL + "/list.json",
		DetailURL: srv.URL + "/view.do",
	})
	store := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "last_scraped_no.txt"))
	require.NoError(t, store.Write(context.Background(), 2))

	h := &harness{board: b, client: client, store: store, repo: &fakeRepo{}, proc: &fakeProcessor{errs: map[int64]error{}}}
	h.engine = NewEngine(client, checkpoint.New(nil, store), h.repo, h.proc, opts)
	return h
}

// withSink returns a fresh engine whose checkpoint consults the repository
// before the local file, the way the crawl command wires it.
func (h *harness) withSink(opts Options) *Engine {
	return NewEngine(h.client, checkpoint.New(h.repo, h.store), h.repo, h.proc, opts)
}

func (h *harness) persisted(t *testing.T) int64 {
	t.Helper()
	v, ok, err := h.store.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestRun_VisitsNewPostsInAscendingOrder(t *testing.T) {
	h := newHarness(t, &board{plain: map[string]bool{"b4": true}}, Options{})

	res, err := h.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, h.board.lists)
	assert.Equal(t, []string{"b3", "b4", "b5"}, h.board.details)
	assert.Equal(t, []int64{3, 5}, h.repo.saved)
	assert.Equal(t, []int64{3, 5}, h.proc.processed)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(2), res.Checkpoint)
	assert.Equal(t, int64(5), res.Running)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int64(5), h.persisted(t))
}

func TestRun_DetailFailureStopsWithoutAdvancing(t *testing.T) {
	h := newHarness(t, &board{broken: map[string]bool{"b4": true}}, Options{})

	res, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl: detail 4")

	assert.Equal(t, []string{"b3", "b4"}, h.board.details)
	assert.Equal(t, []int64{3}, h.repo.saved)
	assert.Equal(t, int64(3), res.Running)
	assert.Equal(t, int64(3), h.persisted(t))
}

func TestRun_StoreFailureStops(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	h.repo.failOn = 3

	_, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"b3"}, h.board.details)
	assert.Equal(t, int64(2), h.persisted(t))
}

func TestRun_DocumentFetchFailureStops(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	h.proc.errs[4] = &pipeline.FetchError{URL: "https://soco.seoul.go.kr/fileDown.do", Err: errors.New("timeout")}

	res, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pipeline.IsFetchError(err))
	assert.Equal(t, []int64{3, 4}, h.proc.processed)
	assert.Equal(t, int64(3), res.Running)
	assert.Equal(t, int64(3), h.persisted(t))
}

func TestRun_ExtractionFailureCountsAndContinues(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	h.proc.errs[4] = errors.New("pipeline: save derived 104: deadlock")

	res, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.Saved)
	assert.Equal(t, int64(5), h.persisted(t))
}

func TestRun_PageCap(t *testing.T) {
	h := newHarness(t, &board{}, Options{MaxPages: 1})

	res, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, h.board.lists)
	assert.Equal(t, 3, res.Candidates)
}

func TestRun_NothingNew(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	require.NoError(t, h.store.Write(context.Background(), 9))

	res, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Candidates)
	assert.Empty(t, h.board.details)
	assert.Equal(t, int64(9), h.persisted(t))
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, h.repo.saved)
	assert.Equal(t, int64(2), h.persisted(t))
}

func TestRun_Locked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "crawl.lock")
	held := flock.New(lockPath)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock() //nolint:errcheck

	h := newHarness(t, &board{}, Options{LockFile: lockPath})
	_, err = h.engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Empty(t, h.board.lists)
}

func TestRun_MarkVisitedFailureStops(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	h.repo.failVisit = 4

	res, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int64{3, 4}, h.repo.saved)
	assert.Equal(t, []int64{3}, h.repo.visited)
	assert.Equal(t, int64(3), res.Running)
	assert.Equal(t, int64(3), h.persisted(t))
}

func TestRun_DocumentFetchFailureIsRetriedNextRun(t *testing.T) {
	h := newHarness(t, &board{}, Options{})
	h.proc.errs[4] = &pipeline.FetchError{URL: "https://soco.seoul.go.kr/fileDown.do", Err: errors.New("timeout")}

	_, err := h.withSink(Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int64{3, 4}, h.proc.processed)
	assert.Equal(t, []int64{3}, h.repo.visited)

	delete(h.proc.errs, 4)
	res, err := h.withSink(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Checkpoint)
	assert.Equal(t, []int64{3, 4, 4, 5}, h.proc.processed)
	assert.Equal(t, []int64{3, 4, 5}, h.repo.visited)
	assert.Equal(t, int64(5), h.persisted(t))
}

func TestRun_SkippedNewestPostStaysBehindCheckpoint(t *testing.T) {
	h := newHarness(t, &board{plain: map[string]bool{"b5": true}}, Options{})

	_, err := h.withSink(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b3", "b4", "b5"}, h.board.details)
	assert.Equal(t, []int64{3, 4}, h.repo.visited)
	assert.Equal(t, int64(5), h.persisted(t))

	res, err := h.withSink(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Checkpoint)
	assert.Zero(t, res.Candidates)
	assert.Equal(t, []string{"b3", "b4", "b5"}, h.board.details)
}
