package pipeline

import (
	"context"

	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/hooks"
	"github.com/dispatchd/dispatchd/pkg/imaging"
)

// pipelineSink adapts a driver's GenerateStream callbacks into the
// Generation Pipeline's per-image phase (spec §4.F step 5): each image is
// run through the post-generate hook, then metadata application and
// storage, as it arrives rather than buffered until the stream ends.
type pipelineSink struct {
	ctx       context.Context
	pipeline  *Pipeline
	requestID string
	session   imaging.Session
	current   Request

	numGenerated *int
	savedRefs    *[]string
	lastProgress *watchdogState

	// saveErr latches the first storage/hook error encountered while
	// draining images, surfaced by the caller after GenerateStream returns.
	saveErr error
}

func (s *pipelineSink) OnProgress(e driver.ProgressEvent) {
	s.lastProgress.touch()
	s.pipeline.emit(events.NewEvent(events.RequestProgress).WithRequest(s.requestID).WithPayload(e))
}

func (s *pipelineSink) OnImage(e driver.ImageEvent) {
	s.lastProgress.touch()
	if s.saveErr != nil {
		return
	}

	img := imaging.Image{Data: e.Data, ContentType: e.ContentType, Index: e.Index}

	postEvent := hooks.PostGenerateEvent{
		RequestID: s.requestID,
		Index:     e.Index,
		Data:      e.Data,
		Metadata:  e.SeedParams,
	}
	refused, reason := s.pipeline.hooks.RunPost(s.ctx, postEvent)
	if refused {
		s.pipeline.emit(events.NewEvent(events.RequestImage).WithRequest(s.requestID).WithPayload(reason))
		return
	}

	input := map[string]any{
		"prompt":     s.current.Prompt,
		"model_id":   s.current.ModelID,
		"num_images": s.current.NumImages,
		"params":     s.current.Params,
	}
	applied, metadata, err := s.session.ApplyMetadata(s.ctx, img, input, e.SeedParams, e.Index)
	if err != nil {
		s.saveErr = err
		return
	}

	if s.current.DoNotSave {
		*s.numGenerated++
		return
	}

	ref, err := s.session.SaveImage(s.ctx, applied, metadata)
	if err != nil {
		s.saveErr = err
		return
	}

	*s.numGenerated++
	*s.savedRefs = append(*s.savedRefs, ref)
	s.pipeline.emit(events.NewEvent(events.RequestImage).WithRequest(s.requestID).WithPayload(ref))
}
