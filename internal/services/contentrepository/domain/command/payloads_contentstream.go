package command

import (
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

const (
	TypeCreateContentStream Type = "CreateContentStream"
	TypeForkContentStream   Type = "ForkContentStream"
	TypeCloseContentStream  Type = "CloseContentStream"
)

// CreateContentStream starts an empty stream.
type CreateContentStream struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
}

func (CreateContentStream) CommandType() Type                    { return TypeCreateContentStream }
func (p CreateContentStream) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

// ForkContentStream starts ContentStreamID as a copy of its source.
type ForkContentStream struct {
	ContentStreamID       ids.ContentStreamID `json:"contentStreamId" validate:"required"`
	SourceContentStreamID ids.ContentStreamID `json:"sourceContentStreamId" validate:"required"`
}

func (ForkContentStream) CommandType() Type                    { return TypeForkContentStream }
func (p ForkContentStream) ContentStream() ids.ContentStreamID { return p.ContentStreamID }

func (p ForkContentStream) Validate() error {
	if p.ContentStreamID == p.SourceContentStreamID {
		return fmt.Errorf("content stream %s cannot fork itself", p.ContentStreamID)
	}
	return nil
}

// CloseContentStream makes a stream read-only.
type CloseContentStream struct {
	ContentStreamID ids.ContentStreamID `json:"contentStreamId" validate:"required"`
}

func (CloseContentStream) CommandType() Type                    { return TypeCloseContentStream }
func (p CloseContentStream) ContentStream() ids.ContentStreamID { return p.ContentStreamID }
