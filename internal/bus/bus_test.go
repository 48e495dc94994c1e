package bus_test

import (
	"testing"
	"time"

	"helicase/internal/bus"
	"helicase/internal/events"
)

func TestTopicIsolationAndOrder(t *testing.T) {
	b := bus.New(8)
	symlinking := b.Subscribe(events.TopicSymlinking)
	analysis := b.Subscribe(events.TopicAnalysis)
	b.Start()

	b.Publish(events.New(events.TopicSymlinking, events.RunDirectoryFound{RunDir: "/runs/a"}))
	b.Publish(events.New(events.TopicAnalysis, events.SymlinksCreated{LibraryID: "BC21A001A"}))
	b.Publish(events.New(events.TopicSymlinking, events.RunDirectoryFound{RunDir: "/runs/b"}))
	b.Stop()

	var symlinkDirs []string
	for env := range symlinking {
		payload, ok := env.Payload.(events.RunDirectoryFound)
		if !ok {
			t.Fatalf("unexpected payload on symlinking topic: %T", env.Payload)
		}
		symlinkDirs = append(symlinkDirs, payload.RunDir)
	}
	if len(symlinkDirs) != 2 || symlinkDirs[0] != "/runs/a" || symlinkDirs[1] != "/runs/b" {
		t.Fatalf("symlinking topic out of order or incomplete: %v", symlinkDirs)
	}

	count := 0
	for env := range analysis {
		if env.Payload.Kind() != events.KindSymlinksCreated {
			t.Fatalf("unexpected kind on analysis topic: %q", env.Payload.Kind())
		}
		count++
	}
	if count != 1 {
		t.Fatalf("analysis topic received %d messages, want 1", count)
	}
}

func TestEverySubscriberReceivesEveryTopicMessage(t *testing.T) {
	b := bus.New(4)
	first := b.Subscribe(events.TopicLogging)
	second := b.Subscribe(events.TopicLogging)
	b.Start()

	b.Publish(events.New(events.TopicLogging, events.LogRecord{Message: "hello"}))
	b.Stop()

	for i, sub := range []<-chan events.Envelope{first, second} {
		env, ok := <-sub
		if !ok {
			t.Fatalf("subscriber %d: channel closed without message", i)
		}
		record, ok := env.Payload.(events.LogRecord)
		if !ok || record.Message != "hello" {
			t.Fatalf("subscriber %d: unexpected payload %#v", i, env.Payload)
		}
	}
}

func TestStopClosesSubscriberChannels(t *testing.T) {
	b := bus.New(4)
	sub := b.Subscribe(events.TopicAnalysis)
	b.Start()
	b.Stop()

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatal("expected closed channel without messages")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after Stop")
	}
}

func TestEnvelopeTimestampsAreStamped(t *testing.T) {
	env := events.New(events.TopicLogging, events.LogRecord{Message: "x"})
	if env.Timestamp.IsZero() {
		t.Fatal("expected stamped timestamp")
	}
}
