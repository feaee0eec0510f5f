package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/85Ryan/Nebula/internal/queue"
	"github.com/85Ryan/Nebula/internal/store"
	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

const batchQueueSize = 16

// batchJobs returns the named documents as priority jobs followed by every
// other document that has no audio yet.
func batchJobs(docs []store.Document, named []store.Document) []queue.Job {
	jobs := make([]queue.Job, 0, len(docs))
	seen := make(map[string]bool, len(named))
	for _, d := range named {
		seen[d.ID] = true
		jobs = append(jobs, queue.Job{DocID: d.ID, Title: d.Title, Chars: utf8.RuneCountInString(d.Content), Priority: true})
	}
	// the list is newest first, generate oldest first
	for i := len(docs) - 1; i >= 0; i-- {
		d := docs[i]
		if seen[d.ID] || d.HasAudio() || d.Content == "" {
			continue
		}
		jobs = append(jobs, queue.Job{DocID: d.ID, Title: d.Title, Chars: utf8.RuneCountInString(d.Content)})
	}
	return jobs
}

func runBatch(ctx context.Context, ids []string) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	docs := a.session.Documents()
	named := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		d, err := findDocument(docs, id)
		if err != nil {
			return err
		}
		named = append(named, d)
	}

	jobs := batchJobs(docs, named)
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "Every document already has audio.")
		return nil
	}

	q := queue.New(batchQueueSize)
	go func() {
		defer q.Close() //nolint:errcheck
		for _, job := range jobs {
			if err := q.Enqueue(ctx, job); err != nil && !errors.Is(err, queue.ErrDuplicate) {
				return
			}
		}
	}()

	return a.drain(ctx, q, len(jobs), os.Stdout)
}

// drain generates queued documents one at a time. The speech service is rate
// limited, so a single worker keeps requests in order.
func (a *app) drain(ctx context.Context, q *queue.Queue, total int, w io.Writer) error {
	var (
		done   int
		failed int
		chars  int
		start  = time.Now()
	)
	for {
		job, err := q.Dequeue(ctx)
		if errors.Is(err, queue.ErrQueueClosed) {
			break
		}
		if err != nil {
			return err
		}
		done++
		chars += job.Chars

		prefix := subtle(fmt.Sprintf("[%d/%d]", done, total))
		if err := a.session.Select(ctx, job.DocID); err != nil {
			failed++
			fmt.Fprintln(w, prefix, warning(job.Title), err)
			continue
		}

		out, err := a.session.Generate(ctx)
		switch {
		case out == nil:
			failed++
			fmt.Fprintln(w, prefix, warning(job.Title), explain(err))
			log.Debug("batch generation failed", "id", job.DocID, "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ttypes.IsCredential(err) || errors.Is(err, ttypes.ErrMissingCredential) {
				return explain(err)
			}
		case err != nil:
			failed++
			fmt.Fprintln(w, prefix, warning(job.Title), "not saved:", err)
		default:
			fmt.Fprintf(w, "%s %s  %s  %s\n", prefix, keyword(job.Title), clock(out.Duration),
				humanize.Bytes(uint64(len(out.WAV)))) //nolint:gosec
		}
	}

	fmt.Fprintf(w, "%s generated, %s failed, %s characters in %s\n",
		humanize.Comma(int64(done-failed)),
		humanize.Comma(int64(failed)),
		humanize.Comma(int64(chars)),
		time.Since(start).Round(time.Second))
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, done)
	}
	return nil
}
