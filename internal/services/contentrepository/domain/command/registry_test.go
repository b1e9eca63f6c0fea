package command

import (
	"errors"
	"testing"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	return registry
}

func TestRegistryValidateForDecision_UnknownType(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForDecision(Command{Type: Type("PaintNode"), PayloadJSON: []byte("{}")})
	if !errors.Is(err, ErrTypeUnknown) {
		t.Fatalf("expected ErrTypeUnknown, got %v", err)
	}
}

func TestRegistryValidateForDecision_MissingType(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForDecision(Command{Type: Type("  "), PayloadJSON: []byte("{}")})
	if !errors.Is(err, ErrTypeRequired) {
		t.Fatalf("expected ErrTypeRequired, got %v", err)
	}
}

func TestRegistryValidateForDecision_InvalidPayload(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForDecision(Command{Type: TypeCreateContentStream, PayloadJSON: []byte("{")})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestRegistryValidateForDecision_RequiredFields(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForDecision(Command{
		Type:        TypeSetNodeProperties,
		PayloadJSON: []byte(`{"contentStreamId":"cs-1","propertyValues":{"title":"x"}}`),
	})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestRegistryValidateForDecision_NormalizesEnvelope(t *testing.T) {
	registry := testRegistry(t)
	cmd, err := registry.ValidateForDecision(Command{
		Type:        Type(" CreateContentStream "),
		RequestID:   " req-1 ",
		PayloadJSON: []byte(`{ "contentStreamId" : "cs-1" }`),
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cmd.Type != TypeCreateContentStream {
		t.Fatalf("type = %q", cmd.Type)
	}
	if cmd.InitiatingUserID != ids.SystemUserID {
		t.Fatalf("user = %q, want system", cmd.InitiatingUserID)
	}
	if cmd.RequestID != "req-1" {
		t.Fatalf("request id = %q", cmd.RequestID)
	}
	if string(cmd.PayloadJSON) != `{"contentStreamId":"cs-1"}` {
		t.Fatalf("payload = %s", cmd.PayloadJSON)
	}
}

func TestRegistryValidateForDecision_RunsPayloadValidate(t *testing.T) {
	registry := testRegistry(t)
	_, err := registry.ValidateForDecision(Command{
		Type:        TypeDisableNodeAggregate,
		PayloadJSON: []byte(`{"contentStreamId":"cs-1","nodeAggregateId":"page","coveredDimensionSpacePoint":{},"nodeVariantSelectionStrategy":"some"}`),
	})
	if err == nil {
		t.Fatal("expected strategy error")
	}
}

func TestFromMapRoundTripsThroughDecode(t *testing.T) {
	registry := testRegistry(t)
	cmd, err := FromMap(TypeCreateNodeAggregateWithNode, map[string]any{
		"contentStreamId":           "cs-1",
		"nodeAggregateId":           "page",
		"nodeTypeName":              "Page",
		"originDimensionSpacePoint": map[string]any{"language": "de"},
		"parentNodeAggregateId":     "root",
		"nodeName":                  "about",
	})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	payload, err := registry.Decode(cmd)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	create, ok := payload.(CreateNodeAggregateWithNode)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	de := dimension.MustPoint(map[string]string{"language": "de"}).AsOrigin()
	if create.OriginDimensionSpacePoint != de {
		t.Fatalf("origin = %s", create.OriginDimensionSpacePoint.String())
	}
	if create.NodeName != "about" {
		t.Fatalf("name = %q", create.NodeName)
	}
}

func TestCopyForContentStreamKeepsEverythingElse(t *testing.T) {
	original := SetNodeProperties{
		ContentStreamID: "cs-1",
		NodeAggregateID: "page",
		PropertyValues:  node.PropertyValues{"title": []byte(`"Hello"`)},
	}
	copied := original.CopyForContentStream("cs-2")
	props, ok := copied.(SetNodeProperties)
	if !ok {
		t.Fatalf("copied type = %T", copied)
	}
	if props.ContentStreamID != "cs-2" {
		t.Fatalf("content stream = %s", props.ContentStreamID)
	}
	if original.ContentStreamID != "cs-1" {
		t.Fatal("original payload mutated")
	}
	if props.NodeAggregateID != "page" || string(props.PropertyValues["title"]) != `"Hello"` {
		t.Fatalf("copied payload = %+v", props)
	}
}

func TestMatchesNodeID(t *testing.T) {
	en := dimension.MustPoint(map[string]string{"language": "en"})
	de := dimension.MustPoint(map[string]string{"language": "de"})
	cmd := SetNodeProperties{ContentStreamID: "cs-1", NodeAggregateID: "page", OriginDimensionSpacePoint: en.AsOrigin()}

	tests := []struct {
		name    string
		address node.Address
		want    bool
	}{
		{name: "exact", address: node.Address{ContentStreamID: "cs-1", DimensionSpacePoint: en, NodeAggregateID: "page"}, want: true},
		{name: "other point", address: node.Address{ContentStreamID: "cs-1", DimensionSpacePoint: de, NodeAggregateID: "page"}},
		{name: "other aggregate", address: node.Address{ContentStreamID: "cs-1", DimensionSpacePoint: en, NodeAggregateID: "news"}},
		{name: "other stream", address: node.Address{ContentStreamID: "cs-2", DimensionSpacePoint: en, NodeAggregateID: "page"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cmd.MatchesNodeID(tc.address); got != tc.want {
				t.Fatalf("MatchesNodeID = %v, want %v", got, tc.want)
			}
		})
	}

	move := MoveDimensionSpacePoint{ContentStreamID: "cs-1", Source: en, Target: de}
	if move.MatchesNodeID(node.Address{ContentStreamID: "cs-1", DimensionSpacePoint: en}) {
		t.Fatal("move should never match a node")
	}
}

func TestDecisionValidate(t *testing.T) {
	if err := (Decision{}).Validate(); err == nil {
		t.Fatal("expected error for empty decision")
	}
	if err := Reject(Rejection{Code: "NOPE"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsWorkspaceCommand(t *testing.T) {
	if !IsWorkspaceCommand(TypeRebaseWorkspace) {
		t.Fatal("rebase should be a workspace command")
	}
	if IsWorkspaceCommand(TypeSetNodeProperties) {
		t.Fatal("set properties is not a workspace command")
	}
	for _, def := range testRegistry(t).ListDefinitions() {
		payload := def.NewPayload()
		_, workspaceScoped := payload.(WorkspaceCommand)
		if workspaceScoped != IsWorkspaceCommand(def.Type) {
			t.Fatalf("%s: workspace scoped = %v", def.Type, workspaceScoped)
		}
	}
}
