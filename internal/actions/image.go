package actions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// imageContentTypes maps a recognized image extension to its content type;
// anything else defaults to application/octet-stream.
var imageContentTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".png": "image/png", ".gif": "image/gif",
	".webp": "image/webp", ".bmp": "image/bmp",
}

func contentTypeForRef(ref string) string {
	ext := strings.ToLower(filepath.Ext(ref))
	if ct, ok := imageContentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ProcessImage uploads a note's image reference to object storage and
// reports completion to the tracker. ImageRef is a local attachment path
// extracted from the note's export; a remote (http/https) reference has no
// fetch collaborator wired and is skipped rather than failed, since an
// image is an optional completion kind.
type ProcessImage struct {
	action.Base
	deps *action.Dependencies
}

func NewProcessImage(deps *action.Dependencies) (action.Action, error) {
	return &ProcessImage{Base: action.NewBase("process_image"), deps: deps}, nil
}

func (a *ProcessImage) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("process_image: expected raw payload bytes")
	}
	var d models.ImageJobData
	return decode(raw, &d)
}

func (a *ProcessImage) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.ImageJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("process_image", err)
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "image_processing",
		StartMessage:      "Uploading note image",
		CompletionMessage: "Note image uploaded",
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			if d.ImageRef == "" || strings.HasPrefix(d.ImageRef, "http://") || strings.HasPrefix(d.ImageRef, "https://") {
				if a.deps.Logger != nil {
					a.deps.Logger.Info().Str("noteId", d.NoteID).Str("imageRef", d.ImageRef).Msg("Skipping image with no local attachment reference")
				}
				return &d, nil
			}

			key := d.NoteID + filepath.Ext(d.ImageRef)
			if _, err := a.deps.Objects.UploadFile(ctx, d.ImageRef, key, contentTypeForRef(d.ImageRef)); err != nil {
				return nil, pipeline.TransientIO("process_image", err)
			}
			return &d, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if err := a.deps.Tracker.MarkLineCompleted(d.NoteID, models.KindImage, 0); err != nil {
		return nil, pipeline.ProgrammingError("process_image", err)
	}
	if err := a.deps.Tracker.MarkWorkerCompleted(d.NoteID, models.KindImage); err != nil {
		return nil, pipeline.ProgrammingError("process_image", err)
	}

	return result, nil
}
