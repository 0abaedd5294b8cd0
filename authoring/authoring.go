package authoring

import (
	"context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"io"
	"snapgram/errs"
	"snapgram/events"
	"snapgram/media"
	"snapgram/storage"
	"snapgram/storage/models"
	"strings"
	"time"
)

// Service creates and edits users and posts. Every flow that uploads media
// before writing the row deletes the upload again when the row write fails.
type Service struct {
	store   storage.Store
	objects media.ObjectStore
	bus     *events.Bus
	preview media.Preview
}

func NewService(store storage.Store, objects media.ObjectStore, bus *events.Bus) *Service {
	return &Service{
		store:   store,
		objects: objects,
		bus:     bus,
		preview: media.DefaultPreview,
	}
}

// ParseTags strips every space and splits on commas: "a, b ,c" -> [a b c].
func ParseTags(raw string) []string {
	compact := strings.ReplaceAll(raw, " ", "")
	tags := make([]string, 0)
	for _, tag := range strings.Split(compact, ",") {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// now is truncated to the precision of the row store so cursors built from
// a freshly created row match what a later read returns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type uploaded struct {
	fileID string
	url    string
}

func (s *Service) upload(ctx context.Context, r io.Reader) (uploaded, error) {
	fileID, err := s.objects.Put(ctx, r)
	if err != nil {
		return uploaded{}, err
	}

	url, err := s.objects.PreviewURL(fileID, s.preview)
	if err == nil && url == "" {
		err = errs.Upstream("preview url", nil)
	}
	if err != nil {
		return uploaded{}, errs.NewPartialFailure("preview url", err, s.discard(ctx, fileID))
	}
	return uploaded{fileID: fileID, url: url}, nil
}

// discard runs even if the caller already gave up on ctx.
func (s *Service) discard(ctx context.Context, fileID string) error {
	err := s.objects.Delete(context.WithoutCancel(ctx), fileID)
	if err != nil {
		log.Errorf("Error deleting orphaned media %s: %v", fileID, err)
	}
	return err
}

type NewPost struct {
	CreatorID string
	Caption   string
	Location  string
	Tags      string
	File      io.Reader
}

func (s *Service) CreatePost(ctx context.Context, input NewPost) (*models.Post, error) {
	if input.CreatorID == "" {
		return nil, errs.InvalidOperation("creator is required")
	}
	if input.File == nil {
		return nil, errs.InvalidOperation("post requires an image")
	}
	if err := s.store.Read(ctx, func(tx storage.Tx) error {
		_, err := tx.GetUser(ctx, input.CreatorID)
		return err
	}); err != nil {
		return nil, err
	}

	image, err := s.upload(ctx, input.File)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		CreatorID: input.CreatorID,
		Caption:   input.Caption,
		ImageURL:  image.url,
		ImageID:   image.fileID,
		Location:  input.Location,
		Tags:      ParseTags(input.Tags),
		Likes:     []string{},
		CreatedAt: now(),
	}
	err = s.store.Write(ctx, func(tx storage.Tx) error {
		return tx.CreatePost(ctx, post)
	})
	if err != nil {
		return nil, errs.NewPartialFailure("create post", err, s.discard(ctx, image.fileID))
	}

	event := events.NewEvent(events.PostCreated, post.CreatorID, post.ID)
	event.OwnerID = post.CreatorID
	s.bus.Emit(ctx, event)
	return post, nil
}

type PostUpdate struct {
	PostID      string
	RequesterID string
	Caption     string
	Location    string
	Tags        string
	// File replaces the image when set.
	File io.Reader
}

func (s *Service) UpdatePost(ctx context.Context, input PostUpdate) (*models.Post, error) {
	if _, err := s.ownedPost(ctx, input.PostID, input.RequesterID); err != nil {
		return nil, err
	}

	var image *uploaded
	if input.File != nil {
		uploadedImage, err := s.upload(ctx, input.File)
		if err != nil {
			return nil, err
		}
		image = &uploadedImage
	}

	var updated *models.Post
	var replacedImageID string
	err := s.store.Write(ctx, func(tx storage.Tx) error {
		post, err := tx.GetPost(ctx, input.PostID)
		if err != nil {
			return err
		}
		if post.CreatorID != input.RequesterID {
			return errs.InvalidOperation("only the creator can edit a post")
		}

		post.Caption = input.Caption
		post.Location = input.Location
		post.Tags = ParseTags(input.Tags)
		if image != nil {
			replacedImageID = post.ImageID
			post.ImageID = image.fileID
			post.ImageURL = image.url
		}
		updated = post
		return tx.UpdatePost(ctx, post)
	})
	if err != nil {
		if image != nil {
			return nil, errs.NewPartialFailure("update post", err, s.discard(ctx, image.fileID))
		}
		return nil, err
	}

	if replacedImageID != "" {
		s.discard(ctx, replacedImageID)
	}
	event := events.NewEvent(events.PostUpdated, input.RequesterID, updated.ID)
	event.OwnerID = updated.CreatorID
	s.bus.Emit(ctx, event)
	return updated, nil
}

func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	var deleted *models.Post
	err := s.store.Write(ctx, func(tx storage.Tx) error {
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.CreatorID != requesterID {
			return errs.InvalidOperation("only the creator can delete a post")
		}
		deleted = post
		return tx.DeletePost(ctx, postID)
	})
	if err != nil {
		return err
	}

	if deleted.ImageID != "" {
		s.discard(ctx, deleted.ImageID)
	}
	event := events.NewEvent(events.PostDeleted, requesterID, postID)
	event.OwnerID = deleted.CreatorID
	s.bus.Emit(ctx, event)
	return nil
}

func (s *Service) ownedPost(ctx context.Context, postID, requesterID string) (*models.Post, error) {
	var post *models.Post
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		var err error
		post, err = tx.GetPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if post.CreatorID != requesterID {
		return nil, errs.InvalidOperation("only the creator can edit a post")
	}
	return post, nil
}
