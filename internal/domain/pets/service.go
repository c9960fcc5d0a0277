package pets

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"

	"petsched/internal/domain/uploads"
	"petsched/internal/ports/capabilities"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("pet not found")
	ErrHasAppointments = errors.New("pet has appointments")
	ErrLimitReached    = errors.New("tier pet limit reached")
)

type Service struct {
	repo   Repository
	photos uploads.Store
	caps   capabilities.CapabilitiesResolver
	now    func() time.Time
}

// NewService: photos y caps pueden ser nil (sin fotos / sin límites de tier).
func NewService(repo Repository, photos uploads.Store, caps capabilities.CapabilitiesResolver) *Service {
	return &Service{
		repo:   repo,
		photos: photos,
		caps:   caps,
		now:    time.Now,
	}
}

type CreateInput struct {
	Name       string
	Species    string
	Breed      string
	Age        *int
	OwnerName  string
	OwnerPhone string

	ClinicID string
	UserID   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Pet, error) {
	name := strings.TrimSpace(in.Name)
	species := strings.TrimSpace(in.Species)
	ownerName := strings.TrimSpace(in.OwnerName)
	if name == "" || species == "" || ownerName == "" {
		return Pet{}, fmt.Errorf("%w: name, species and owner_name are required", ErrInvalidInput)
	}
	if in.Age != nil && *in.Age < 0 {
		return Pet{}, fmt.Errorf("%w: age must not be negative", ErrInvalidInput)
	}

	if err := s.checkCapacity(ctx, in.ClinicID); err != nil {
		return Pet{}, err
	}

	now := s.now()
	p := Pet{
		ID:         uuid.NewString(),
		Name:       name,
		Species:    species,
		Breed:      strings.TrimSpace(in.Breed),
		Age:        in.Age,
		OwnerName:  ownerName,
		OwnerPhone: strings.TrimSpace(in.OwnerPhone),
		ClinicID:   strings.TrimSpace(in.ClinicID),
		UserID:     strings.TrimSpace(in.UserID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Pet{}, err
	}
	return p, nil
}

func (s *Service) checkCapacity(ctx context.Context, clinicID string) error {
	if s.caps == nil || strings.TrimSpace(clinicID) == "" {
		return nil
	}
	ok, err := s.caps.HasCapacity(ctx, capabilities.CapacityCheck{
		ClinicID: clinicID,
		Resource: capabilities.ResourcePets,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrLimitReached
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Pet, error) {
	if strings.TrimSpace(id) == "" {
		return Pet{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// List devuelve todas las mascotas, más nuevas primero.
func (s *Service) List(ctx context.Context) ([]Pet, error) {
	return s.repo.List(ctx)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Pet, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.repo.ListRecent(ctx, limit)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Exists lo usa appointments para validar pet_id sin importar este paquete completo.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateInput: nil = conservar el valor actual.
type UpdateInput struct {
	Name       *string
	Species    *string
	Breed      *string
	Age        *int
	OwnerName  *string
	OwnerPhone *string
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Pet, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Pet{}, err
	}

	if in.Name != nil {
		current.Name = strings.TrimSpace(*in.Name)
	}
	if in.Species != nil {
		current.Species = strings.TrimSpace(*in.Species)
	}
	if in.OwnerName != nil {
		current.OwnerName = strings.TrimSpace(*in.OwnerName)
	}
	if current.Name == "" || current.Species == "" || current.OwnerName == "" {
		return Pet{}, fmt.Errorf("%w: name, species and owner_name cannot be empty", ErrInvalidInput)
	}
	if in.Breed != nil {
		current.Breed = strings.TrimSpace(*in.Breed)
	}
	if in.Age != nil {
		if *in.Age < 0 {
			return Pet{}, fmt.Errorf("%w: age must not be negative", ErrInvalidInput)
		}
		current.Age = in.Age
	}
	if in.OwnerPhone != nil {
		current.OwnerPhone = strings.TrimSpace(*in.OwnerPhone)
	}

	current.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, current); err != nil {
		return Pet{}, err
	}
	return current, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	return s.repo.DeleteIfUnreferenced(ctx, id)
}

// AttachPhoto guarda la imagen y actualiza photo_url. Si había foto previa se borra del disco.
func (s *Service) AttachPhoto(ctx context.Context, id string, fh *multipart.FileHeader) (Pet, error) {
	if s.photos == nil {
		return Pet{}, errors.New("photo storage not configured")
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Pet{}, err
	}

	f, err := s.photos.Save(ctx, fh)
	if err != nil {
		return Pet{}, err
	}

	previous := current.PhotoURL
	current.PhotoURL = f.URL
	current.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, current); err != nil {
		_ = s.photos.Delete(ctx, f.Filename)
		return Pet{}, err
	}

	if name, ok := s.photos.FilenameFromURL(previous); ok {
		_ = s.photos.Delete(ctx, name)
	}
	return current, nil
}
