package crawl

import (
	"context"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/checkpoint"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/pipeline"
)

// NoticeMarker must appear in a title for the post to be persisted.
const NoticeMarker = "공고"

// ErrLocked is returned when another crawl holds the lock file.
var ErrLocked = eris.New("crawl: another run holds the lock")

// Repository stores crawled announcements. MarkVisited is called once the
// announcement is fully handled, which is what the checkpoint sink counts.
type Repository interface {
	UpsertAnnouncement(ctx context.Context, a *model.Announcement) (int64, error)
	MarkVisited(ctx context.Context, id int64) error
}

// Processor extracts and writes the derived fields of a stored announcement.
type Processor interface {
	Process(ctx context.Context, a *model.Announcement) error
}

// Options tunes a crawl run.
type Options struct {
	// LockFile guards against concurrent runs. Empty disables locking.
	LockFile string
	// MaxPages caps the list pages walked per run. 0 walks until the checkpoint.
	MaxPages int
}

// Result summarizes a crawl run.
type Result struct {
	RunID      string `json:"run_id"`
	Checkpoint int64  `json:"checkpoint"`
	Running    int64  `json:"running"`
	Candidates int    `json:"candidates"`
	Saved      int    `json:"saved"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// Engine runs checkpoint-gated crawls of the board.
type Engine struct {
	client *Client
	gate   *checkpoint.Controller
	repo   Repository
	proc   Processor
	opts   Options
}

// NewEngine creates an Engine. proc may be nil to only store announcements.
func NewEngine(client *Client, gate *checkpoint.Controller, repo Repository, proc Processor, opts Options) *Engine {
	return &Engine{client: client, gate: gate, repo: repo, proc: proc, opts: opts}
}

type candidate struct {
	row    ListRow
	number int64
}

// Run walks the board newest first until the checkpoint, then visits the new
// posts one at a time in ascending listing order. A fetch failure ends the
// run without advancing past the failing post. The checkpoint is persisted on
// every exit path.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.opts.LockFile != "" {
		lock := flock.New(e.opts.LockFile)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, eris.Wrap(err, "crawl: acquire lock")
		}
		if !ok {
			return nil, ErrLocked
		}
		defer lock.Unlock() //nolint:errcheck
	}

	res := &Result{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("run_id", res.RunID))
	res.Checkpoint = e.gate.Load(ctx)

	defer func() {
		// Persist logs its own failure.
		_ = e.gate.Persist(context.WithoutCancel(ctx))
		res.Running = e.gate.Running()
		log.Info("crawl: run finished",
			zap.Int64("checkpoint", res.Checkpoint),
			zap.Int64("running", res.Running),
			zap.Int("candidates", res.Candidates),
			zap.Int("saved", res.Saved),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}()

	cands, err := e.gather(ctx, log)
	if err != nil {
		return res, err
	}
	res.Candidates = len(cands)

	sort.Slice(cands, func(i, j int) bool { return cands[i].number < cands[j].number })
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "crawl: cancelled")
		}
		if err := e.visit(ctx, c, res, log); err != nil {
			return res, err
		}
	}
	return res, nil
}

// gather collects the posts above the checkpoint from the list API.
func (e *Engine) gather(ctx context.Context, log *zap.Logger) ([]candidate, error) {
	var out []candidate
	for page, walked := 1, 0; ; walked++ {
		if e.opts.MaxPages > 0 && walked >= e.opts.MaxPages {
			log.Info("crawl: page cap reached", zap.Int("max_pages", e.opts.MaxPages))
			return out, nil
		}

		lp, err := e.client.List(ctx, page)
		if err != nil {
			return out, err
		}
		for idx, row := range lp.Rows {
			n := lp.Number(idx)
			if e.gate.Decide(n) == checkpoint.Stop {
				log.Info("crawl: reached checkpoint",
					zap.Int64("number", n),
					zap.Int64("checkpoint", e.gate.Checkpoint()),
				)
				return out, nil
			}
			out = append(out, candidate{row: row, number: n})
		}
		if !lp.HasNext() || len(lp.Rows) == 0 {
			return out, nil
		}
		page = int(lp.Paging.PageIndex) + 1
	}
}

func (e *Engine) visit(ctx context.Context, c candidate, res *Result, log *zap.Logger) error {
	log = log.With(zap.Int64("listing_number", c.number), zap.String("board_id", string(c.row.BoardID)))

	a, err := e.client.Detail(ctx, c.row, c.number)
	if err != nil {
		log.Error("crawl: detail fetch failed, stopping run", zap.Error(err))
		return err
	}

	if !strings.Contains(a.Title, NoticeMarker) {
		log.Info("crawl: skip post without notice marker", zap.String("title", a.Title))
		res.Skipped++
		e.gate.RecordVisited(c.number)
		return nil
	}

	id, err := e.repo.UpsertAnnouncement(ctx, a)
	if err != nil {
		log.Error("crawl: store announcement failed, stopping run", zap.Error(err))
		return err
	}
	a.ID = id
	res.Saved++

	if e.proc != nil {
		if err := e.proc.Process(ctx, a); err != nil {
			if pipeline.IsFetchError(err) {
				log.Error("crawl: document fetch failed, stopping run", zap.Error(err))
				return err
			}
			res.Failed++
			log.Warn("crawl: extraction failed", zap.Int64("announcement_id", id), zap.Error(err))
		}
	}

	if err := e.repo.MarkVisited(ctx, id); err != nil {
		log.Error("crawl: mark visited failed, stopping run", zap.Error(err))
		return err
	}
	e.gate.RecordVisited(c.number)
	return nil
}
