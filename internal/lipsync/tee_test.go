package lipsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func collect(ch <-chan []byte) []string {
	var out []string
	for c := range ch {
		out = append(out, string(c))
	}
	return out
}

func TestTee_BothConsumersSeeEveryChunk(t *testing.T) {
	a, b := Tee(context.Background(), strings.NewReader("ab"), 1)

	// Drain a fully before touching b; b must buffer without blocking a.
	gotA := collect(a)
	gotB := collect(b)

	for name, got := range map[string][]string{"a": gotA, "b": gotB} {
		if strings.Join(got, "|") != "a|b" {
			t.Errorf("consumer %s got %q; want [a b]", name, got)
		}
	}
}

func TestTee_CancelClosesBoth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, b := Tee(ctx, blockingReader{}, 16)
	cancel()

	for _, ch := range []<-chan []byte{a, b} {
		select {
		case _, ok := <-ch:
			for ok {
				_, ok = <-ch
			}
		case <-time.After(time.Second):
			t.Fatal("channel not closed after cancel")
		}
	}
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	time.Sleep(10 * time.Millisecond)
	return 0, nil
}

func TestQueue_FlushesAfterClose(t *testing.T) {
	q := newQueue[int](context.Background())
	for i := range 5 {
		q.in <- i
	}
	close(q.in)

	var got []int
	for v := range q.out {
		got = append(got, v)
	}
	if len(got) != 5 {
		t.Fatalf("got %v; want 0..4", got)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v; want 0..4 in order", got)
		}
	}
}

func TestStopSignal_Epochs(t *testing.T) {
	s := NewStopSignal()
	first := s.Begin()

	if !s.Stop() {
		t.Fatal("first Stop reported false")
	}
	if s.Stop() {
		t.Fatal("second Stop reported true")
	}

	select {
	case <-first:
	default:
		t.Fatal("epoch not closed by Stop")
	}

	second := s.Begin()
	select {
	case <-second:
		t.Fatal("new epoch already closed")
	default:
	}
	if s.Done() != second {
		t.Fatal("Done does not return the current epoch")
	}
}

func TestStopSignal_ContextCause(t *testing.T) {
	s := NewStopSignal()
	ctx, cancel := s.Context(context.Background())
	defer cancel()

	s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by Stop")
	}
	if cause := context.Cause(ctx); !errors.Is(cause, ErrInterrupted) {
		t.Fatalf("cause = %v; want ErrInterrupted", cause)
	}

	// A context taken after Stop belongs to a fresh epoch.
	ctx2, cancel2 := s.Context(context.Background())
	defer cancel2()
	select {
	case <-ctx2.Done():
		t.Fatal("context from new epoch is already done")
	case <-time.After(20 * time.Millisecond):
	}
}
