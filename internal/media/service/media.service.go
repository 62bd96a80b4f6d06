package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"

	"mediastore/internal/media/model"
	"mediastore/internal/media/repository"
	"mediastore/pkg/logger"
	"mediastore/pkg/metrics"
	"mediastore/socket"
)

// Publisher receives store events. *socket.Hub satisfies it.
type Publisher interface {
	Publish(socket.Event)
}

type MediaService struct {
	Repo  *repository.MediaRepository
	Hub   Publisher
	NewID IDFunc
}

func NewMediaService(repo *repository.MediaRepository, hub Publisher) *MediaService {
	return &MediaService{Repo: repo, Hub: hub, NewID: NewID}
}

// Write validates and stores a new JSON document. All input checks happen
// before anything touches the filesystem.
func (s *MediaService) Write(ctx context.Context, req model.CreateRequest) (ref *model.DocumentRef, err error) {
	defer func() {
		if p := recover(); p != nil {
			ref, err = nil, panicError("write", req.OwnerID, p)
		}
	}()

	if req.OwnerID == "" {
		return nil, model.ErrMissingOwner
	}
	if err := repository.ValidateSegment(req.OwnerID); err != nil {
		return nil, err
	}
	if !IsJSONContentType(req.ContentType) {
		return nil, fmt.Errorf("%w: got %q", model.ErrUnsupportedMediaType, req.ContentType)
	}
	data, err := NormalizeJSON(req.Body)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vis := model.VisibilityFromFlag(req.Public)

	// A collision on a fresh 122-bit random id means something is badly
	// wrong with the random source; one retry, then give up loudly.
	var id string
	for attempt := 0; attempt < 2; attempt++ {
		id = s.NewID()
		_, err = s.Repo.Create(vis, req.OwnerID, id, data)
		if !errors.Is(err, model.ErrAlreadyExists) {
			break
		}
		logger.Sugar.Warnf("Identifier collision on %s for owner %s (attempt %d)", id, req.OwnerID, attempt+1)
	}
	if err != nil {
		metrics.RecordDocumentWrite(string(vis), 0, false)
		return nil, err
	}

	location, err := repository.Location(s.Repo.Layout, vis, req.OwnerID, id)
	if err != nil {
		return nil, err
	}
	metrics.RecordDocumentWrite(string(vis), len(data), true)
	logger.Sugar.Infof("Stored document %s for owner %s at %s", id, req.OwnerID, location)

	ref = &model.DocumentRef{ID: id, OwnerID: req.OwnerID, Visibility: vis, Location: location}
	s.publish(socket.Event{
		Type:       socket.CreatedType,
		UserID:     req.OwnerID,
		DocID:      id,
		Visibility: string(vis),
		Location:   location,
	})
	return ref, nil
}

// DeleteOwner removes every document of ownerID. The returned result is
// non-nil whenever err is nil; callers inspect Outcome.
func (s *MediaService) DeleteOwner(ctx context.Context, ownerID string) (res *model.DeleteResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, panicError("delete", ownerID, p)
		}
	}()

	if ownerID == "" {
		return nil, model.ErrMissingOwner
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err = s.Repo.RemoveOwner(ownerID)
	if err != nil {
		return nil, err
	}
	metrics.RecordOwnerDelete(res.Outcome.String())

	switch res.Outcome {
	case model.OutcomeNotFound:
		logger.Sugar.Infof("Delete requested for owner %s but nothing is stored", ownerID)
		return res, nil
	case model.OutcomeDeleted:
		logger.Sugar.Infof("Deleted all content of owner %s", ownerID)
	case model.OutcomePartialFailure:
		logger.Sugar.Errorf("Owner %s was only partially deleted; storage needs operator attention", ownerID)
	}

	s.publish(socket.Event{
		Type:    socket.DeletedType,
		UserID:  ownerID,
		Outcome: res.Outcome.String(),
	})
	return res, nil
}

func (s *MediaService) publish(ev socket.Event) {
	if s.Hub != nil {
		s.Hub.Publish(ev)
	}
}

// IsJSONContentType accepts application/json with optional parameters.
func IsJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// NormalizeJSON parses exactly one JSON value and re-encodes it compactly.
// Numbers keep their original digits.
func NormalizeJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", model.ErrInvalidPayload)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func panicError(op, ownerID string, p any) error {
	logger.Sugar.Errorf("Recovered panic during %s for owner %s: %v", op, ownerID, p)
	return &model.StorageError{Op: op, Path: ownerID, Err: fmt.Errorf("panic: %v", p)}
}
