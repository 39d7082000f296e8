package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate(t *testing.T) {
	ok := []Event{
		{Version: 1, Op: OpClear, TS: mustTS()},
		{Version: 1, Op: OpClearEndpoint, Endpoint: "latvia", TS: mustTS()},
		{Version: 1, Op: OpClearArea, TS: mustTS(), BBox: &BBox{X1: 24, Y1: 56.9, X2: 24.2, Y2: 57, SRID: "EPSG:4326"}},
		{Version: 1, Op: OpClearArea, Endpoint: "latvia", TS: mustTS(), BBox: &BBox{X1: 24, Y1: 56.9, X2: 24.2, Y2: 57}},
	}
	for _, ev := range ok {
		if err := ev.Validate(); err != nil {
			t.Fatalf("%+v: unexpected %v", ev, err)
		}
	}

	bad := map[string]Event{
		"version":        {Version: 2, Op: OpClear, TS: mustTS()},
		"missing ts":     {Version: 1, Op: OpClear},
		"unknown op":     {Version: 1, Op: "delete", TS: mustTS()},
		"clear with ep":  {Version: 1, Op: OpClear, Endpoint: "latvia", TS: mustTS()},
		"no endpoint":    {Version: 1, Op: OpClearEndpoint, TS: mustTS()},
		"no bbox":        {Version: 1, Op: OpClearArea, TS: mustTS()},
		"inverted bbox":  {Version: 1, Op: OpClearArea, TS: mustTS(), BBox: &BBox{X1: 25, Y1: 56, X2: 24, Y2: 57}},
		"projected bbox": {Version: 1, Op: OpClearArea, TS: mustTS(), BBox: &BBox{X1: 1, Y1: 1, X2: 2, Y2: 2, SRID: "EPSG:3059"}},
		"lat range":      {Version: 1, Op: OpClearArea, TS: mustTS(), BBox: &BBox{X1: 1, Y1: -95, X2: 2, Y2: 2}},
	}
	for name, ev := range bad {
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEvent_JSONShape(t *testing.T) {
	raw := `{"version":1,"op":"clear_endpoint","endpoint":"latvia","ts":"2025-10-26T12:30:45Z"}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Op != OpClearEndpoint || ev.Endpoint != "latvia" || !ev.TS.Equal(mustTS()) {
		t.Fatalf("decoded %+v", ev)
	}
}

func TestEvent_DedupeKey(t *testing.T) {
	a := Event{Version: 1, Op: OpClearEndpoint, Endpoint: "latvia", TS: mustTS()}
	b := a
	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("same event, different keys")
	}
	b.TS = b.TS.Add(time.Second)
	if a.DedupeKey() == b.DedupeKey() {
		t.Fatalf("different ts, same key")
	}
}

type recordingTarget struct {
	cleared  int
	endpoint string
	area     model.BoundingBox
	err      error
}

func (r *recordingTarget) ClearCache(context.Context) { r.cleared++ }

func (r *recordingTarget) ClearEndpoint(_ context.Context, ep string) error {
	r.endpoint = ep
	return r.err
}

func (r *recordingTarget) ClearArea(_ context.Context, ep string, bb model.BoundingBox) (int, error) {
	r.endpoint = ep
	r.area = bb
	return 3, r.err
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	tg := &recordingTarget{}

	if err := Apply(ctx, tg, Event{Version: 1, Op: OpClear, TS: mustTS()}); err != nil || tg.cleared != 1 {
		t.Fatalf("clear: err=%v cleared=%d", err, tg.cleared)
	}
	if err := Apply(ctx, tg, Event{Version: 1, Op: OpClearEndpoint, Endpoint: "latvia", TS: mustTS()}); err != nil || tg.endpoint != "latvia" {
		t.Fatalf("clear_endpoint: err=%v endpoint=%q", err, tg.endpoint)
	}
	ev := Event{Version: 1, Op: OpClearArea, TS: mustTS(), BBox: &BBox{X1: 24, Y1: 56.9, X2: 24.2, Y2: 57}}
	if err := Apply(ctx, tg, ev); err != nil || tg.area.MinLon != 24 || tg.area.MaxLat != 57 {
		t.Fatalf("clear_area: err=%v area=%+v", err, tg.area)
	}

	tg.err = model.ErrUnknownEndpoint
	err := Apply(ctx, tg, Event{Version: 1, Op: OpClearEndpoint, Endpoint: "nope", TS: mustTS()})
	if !errors.Is(err, model.ErrUnknownEndpoint) {
		t.Fatalf("err=%v", err)
	}
	if err := Apply(ctx, tg, Event{Version: 1, Op: "bogus", TS: mustTS()}); err == nil {
		t.Fatalf("expected validation error")
	}
}
