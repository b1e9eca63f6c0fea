package event

import (
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	return registry
}

func TestRegistryValidateForAppend_CanonicalizesPayloadJSON(t *testing.T) {
	registry := testRegistry(t)
	evt := Event{
		StreamName:  ContentStreamStream("cs-1"),
		Type:        TypeContentStreamWasForked,
		Timestamp:   time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"versionOfSourceContentStream": 3, "sourceContentStreamId":"cs-0","contentStreamId":"cs-1"}`),
	}

	validated, err := registry.ValidateForAppend(evt)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := `{"contentStreamId":"cs-1","sourceContentStreamId":"cs-0","versionOfSourceContentStream":3}`
	if string(validated.PayloadJSON) != want {
		t.Fatalf("payload = %s, want %s", validated.PayloadJSON, want)
	}
}

func TestRegistryValidateForAppend_UnknownType(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		StreamName:  ContentStreamStream("cs-1"),
		Type:        Type("NodeWasTeleported"),
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{}`),
	})
	if !errors.Is(err, ErrTypeUnknown) {
		t.Fatalf("expected ErrTypeUnknown, got %v", err)
	}
}

func TestRegistryValidateForAppend_RejectsUnknownPayloadFields(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		StreamName:  ContentStreamStream("cs-1"),
		Type:        TypeContentStreamWasCreated,
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{"contentStreamId":"cs-1","color":"blue"}`),
	})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestRegistryValidateForAppend_RequiresTaggedFields(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		StreamName:  ContentStreamStream("cs-1"),
		Type:        TypeNodeAggregateWasDisabled,
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{"contentStreamId":"cs-1","affectedDimensionSpacePoints":[{}]}`),
	})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestRegistryValidateForAppend_StreamMustMatchPayload(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		StreamName:  ContentStreamStream("cs-2"),
		Type:        TypeContentStreamWasCreated,
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{"contentStreamId":"cs-1"}`),
	})
	if !errors.Is(err, ErrStreamMismatch) {
		t.Fatalf("expected ErrStreamMismatch, got %v", err)
	}

	_, err = registry.ValidateForAppend(Event{
		StreamName:  ContentStreamStream("live"),
		Type:        TypeWorkspaceWasDiscarded,
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{"workspaceName":"live","newContentStreamId":"cs-2","previousContentStreamId":"cs-1"}`),
	})
	if !errors.Is(err, ErrStreamMismatch) {
		t.Fatalf("expected ErrStreamMismatch for workspace event, got %v", err)
	}
}

func TestRegistryValidateForAppend_RunsPayloadValidation(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		StreamName: ContentStreamStream("cs-1"),
		Type:       TypeNodeAggregateWithNodeWasCreated,
		Timestamp:  time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{"contentStreamId":"cs-1","nodeAggregateId":"child","nodeTypeName":"Page",` +
			`"originDimensionSpacePoint":{"language":"en"},"coveredDimensionSpacePoints":[{"language":"de"}],` +
			`"parentNodeAggregateId":"root","nodeAggregateClassification":"regular"}`),
	})
	if !errors.Is(err, ErrPayloadInconsistent) {
		t.Fatalf("expected ErrPayloadInconsistent, got %v", err)
	}
}

func TestRegistryDecodeReturnsPayloadValue(t *testing.T) {
	registry := testRegistry(t)
	en := dimension.MustPoint(map[string]string{"language": "en"})
	evt, err := New(ContentStreamStream("cs-1"), TypeNodeAggregateWasEnabled, NodeAggregateWasEnabled{
		ContentStreamID:              "cs-1",
		NodeAggregateID:              "page",
		AffectedDimensionSpacePoints: dimension.NewPointSet(en),
	}, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	payload, err := registry.Decode(evt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	enabled, ok := payload.(NodeAggregateWasEnabled)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	if !enabled.AffectedDimensionSpacePoints.Contains(en) {
		t.Fatalf("affected points = %v", enabled.AffectedDimensionSpacePoints.Points())
	}
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	registry := testRegistry(t)
	err := registry.Register(Definition{Type: TypeContentStreamWasCreated, NewPayload: payloadOf[ContentStreamWasCreated]()})
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if len(registry.ListDefinitions()) != 20 {
		t.Fatalf("definitions = %d, want 20", len(registry.ListDefinitions()))
	}
}

func TestRetargetRewritesContentStream(t *testing.T) {
	registry := testRegistry(t)
	evt, err := New(ContentStreamStream("cs-1"), TypeNodePropertiesWereSet, NodePropertiesWereSet{
		ContentStreamID: "cs-1",
		NodeAggregateID: "page",
	}, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	evt.Seq = 9
	evt.StreamVersion = 4
	evt.Hash = "h"

	moved, err := Retarget(evt, "cs-live")
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if moved.Seq != 0 || moved.StreamVersion != 0 || moved.Hash != "" {
		t.Fatalf("store fields not cleared: %+v", moved)
	}
	if moved.StreamName != ContentStreamStream("cs-live") {
		t.Fatalf("stream = %s", moved.StreamName)
	}
	payload, err := registry.Decode(moved)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := payload.(NodePropertiesWereSet).ContentStreamID; got != ids.ContentStreamID("cs-live") {
		t.Fatalf("payload stream = %s", got)
	}
}

func TestRetargetRejectsWorkspaceEvents(t *testing.T) {
	evt := Event{StreamName: WorkspaceStream("live"), Type: TypeWorkspaceWasDiscarded, PayloadJSON: []byte(`{}`)}
	if _, err := Retarget(evt, "cs-1"); err == nil {
		t.Fatal("expected error for workspace event")
	}
}

func TestChainHashRequiresEventHash(t *testing.T) {
	_, err := ChainHash(Event{StreamName: ContentStreamStream("cs-1")}, "prev")
	if !errors.Is(err, ErrHashRequired) {
		t.Fatalf("expected ErrHashRequired, got %v", err)
	}
}

func TestEventHashChangesWithPayload(t *testing.T) {
	base := Event{
		StreamName:  ContentStreamStream("cs-1"),
		Type:        TypeContentStreamWasCreated,
		Timestamp:   time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"contentStreamId":"cs-1"}`),
	}
	first, err := EventHash(base)
	if err != nil {
		t.Fatalf("event hash: %v", err)
	}
	changed := base
	changed.PayloadJSON = []byte(`{"contentStreamId":"cs-2"}`)
	second, err := EventHash(changed)
	if err != nil {
		t.Fatalf("event hash: %v", err)
	}
	if first == second {
		t.Fatal("expected hash to change with payload")
	}
}
