package kafka

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when processing succeeded and the offset
// may be committed. A non-nil error stops the consumer; the group then
// redelivers everything past the last committed offset.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// workerFor pins a message key to one worker, so messages sharing a key
// are handled sequentially even with a pool.
func workerFor(key []byte, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(workers))
}

type trackedMsg struct {
	m    kafka.Message
	done bool
}

// offsetTracker holds in-flight messages per partition in arrival order and
// yields the newest message whose predecessors have all finished.
// Committing that one never commits past an unfinished message.
type offsetTracker struct {
	pending map[int][]trackedMsg
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: map[int][]trackedMsg{}}
}

func (t *offsetTracker) track(m kafka.Message) {
	t.pending[m.Partition] = append(t.pending[m.Partition], trackedMsg{m: m})
}

// complete marks one message done and reports the latest commit-safe
// message for its partition, if the finished prefix advanced.
func (t *offsetTracker) complete(m kafka.Message) (kafka.Message, bool) {
	q := t.pending[m.Partition]
	for i := range q {
		if q[i].m.Offset == m.Offset {
			q[i].done = true
			break
		}
	}
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := q[n-1].m
	t.pending[m.Partition] = q[n:]
	return last, true
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		m   kafka.Message
		err error
	}

	jobs := make([]chan kafka.Message, c.workers)
	results := make(chan result, 4*c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(ch <-chan kafka.Message) {
			defer wg.Done()
			for m := range ch {
				results <- result{m, h(ctx, m)}
			}
		}(jobs[i])
	}
	drain := func() {
		for _, ch := range jobs {
			close(ch)
		}
		go func() {
			wg.Wait()
			close(results)
		}()
		for range results {
		}
	}

	msgs := make(chan kafka.Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			m, err := c.r.ReadMessage(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	tracker := newOffsetTracker()
	finish := func(res result) error {
		if res.err != nil {
			return fmt.Errorf("handle partition=%d offset=%d: %w", res.m.Partition, res.m.Offset, res.err)
		}
		if last, ok := tracker.complete(res.m); ok {
			return c.r.CommitMessages(ctx, last)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil
		case err := <-readErr:
			drain()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		case res := <-results:
			if err := finish(res); err != nil {
				drain()
				return err
			}
		case m := <-msgs:
			tracker.track(m)
			w := jobs[workerFor(m.Key, c.workers)]
		dispatch:
			// keep finishing results while the target worker is busy, or a
			// full queue would deadlock the loop
			for {
				select {
				case w <- m:
					break dispatch
				case res := <-results:
					if err := finish(res); err != nil {
						drain()
						return err
					}
				}
			}
		}
	}
}
