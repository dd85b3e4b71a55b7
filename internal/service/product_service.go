package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
	"github.com/sandeepkv93/product-catalog-api/internal/repository"
)

var ErrProductNoUpdates = errors.New("no updatable fields provided")

type CreateProductInput struct {
	Title       string   `json:"title" validate:"required,notblank,max=200"`
	Description string   `json:"description" validate:"required,notblank,max=2000"`
	Category    string   `json:"category" validate:"required,notblank,max=100"`
	IsAvailable *bool    `json:"isAvailable" validate:"required"`
	Image       string   `json:"image" validate:"required,notblank,url,max=1024"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
}

type UpdateProductInput struct {
	Title       *string  `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string  `json:"description" validate:"omitempty,notblank,max=2000"`
	Category    *string  `json:"category" validate:"omitempty,notblank,max=100"`
	IsAvailable *bool    `json:"isAvailable"`
	Image       *string  `json:"image" validate:"omitempty,notblank,url,max=1024"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "invalid product: " + strings.Join(parts, "; ")
}

type ProductServiceImpl struct {
	repo     repository.ProductRepository
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewProductService(repo repository.ProductRepository) *ProductServiceImpl {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// RegisterValidation only fails for an empty tag or nil func.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &ProductServiceImpl{
		repo:     repo,
		validate: v,
		tracer:   observability.Tracer("service"),
	}
}

func (s *ProductServiceImpl) List(ctx context.Context) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.list")
	defer span.End()
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "list", outcome, time.Since(start)) }()

	products, err := s.repo.List(ctx)
	if err != nil {
		outcome = "error"
		failSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("product.count", len(products)))
	return products, nil
}

func (s *ProductServiceImpl) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.get", trace.WithAttributes(attribute.Int64("product.id", int64(id))))
	defer span.End()
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "get", outcome, time.Since(start)) }()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		outcome = classifyRepoErr(err)
		failSpan(span, err)
		return nil, err
	}
	return product, nil
}

func (s *ProductServiceImpl) Create(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.create")
	defer span.End()
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "create", outcome, time.Since(start)) }()

	if err := s.validateStruct(input); err != nil {
		outcome = "bad_request"
		return nil, err
	}

	product := &domain.Product{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		IsAvailable: *input.IsAvailable,
		Image:       input.Image,
		Price:       *input.Price,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		outcome = "error"
		failSpan(span, err)
		return nil, fmt.Errorf("create product: %w", err)
	}
	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	return product, nil
}

func (s *ProductServiceImpl) Update(ctx context.Context, id uint, input UpdateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "product.update", trace.WithAttributes(attribute.Int64("product.id", int64(id))))
	defer span.End()
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "update", outcome, time.Since(start)) }()

	if err := s.validateStruct(input); err != nil {
		outcome = "bad_request"
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.IsAvailable != nil {
		updates["is_available"] = *input.IsAvailable
	}
	if input.Image != nil {
		updates["image"] = *input.Image
	}
	if input.Price != nil {
		updates["price"] = *input.Price
	}
	if len(updates) == 0 {
		outcome = "bad_request"
		return nil, ErrProductNoUpdates
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		outcome = classifyRepoErr(err)
		failSpan(span, err)
		return nil, err
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		outcome = classifyRepoErr(err)
		failSpan(span, err)
		return nil, err
	}
	return product, nil
}

func (s *ProductServiceImpl) DeleteByID(ctx context.Context, id uint) error {
	ctx, span := s.tracer.Start(ctx, "product.delete", trace.WithAttributes(attribute.Int64("product.id", int64(id))))
	defer span.End()
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProductOperation(ctx, "delete", outcome, time.Since(start)) }()

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		outcome = classifyRepoErr(err)
		failSpan(span, err)
		return err
	}
	return nil
}

func (s *ProductServiceImpl) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "notblank":
		return "must not be blank"
	case "url":
		return "must be an absolute URL"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func classifyRepoErr(err error) string {
	if errors.Is(err, repository.ErrProductNotFound) {
		return "not_found"
	}
	return "error"
}

func failSpan(span trace.Span, err error) {
	if errors.Is(err, repository.ErrProductNotFound) {
		span.SetAttributes(attribute.Bool("product.not_found", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
