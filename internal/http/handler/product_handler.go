package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/http/middleware"
	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
	"github.com/sandeepkv93/product-catalog-api/internal/repository"
	"github.com/sandeepkv93/product-catalog-api/internal/service"
)

type ProductListResponse struct {
	Total    int              `json:"total"`
	Products []domain.Product `json:"products"`
}

type DeleteResponse struct {
	Message string `json:"message"`
}

type ProductHandler struct {
	svc    service.ProductService
	logger *slog.Logger
}

func NewProductHandler(svc service.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc, logger: observability.ComponentLogger("product_handler")}
}

// List godoc
// @Summary      List products
// @Description  Returns every product ordered by id together with the total count.
// @Tags         products
// @Produce      json
// @Success      200  {object}  handler.ProductListResponse
// @Failure      500  {object}  response.ErrorEnvelope
// @Router       /products [get]
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to list products", err)
		return
	}
	response.JSON(w, r, http.StatusOK, ProductListResponse{Total: len(products), Products: products})
}

// GetByID godoc
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Param        id   path      int  true  "Product ID"  minimum(1)
// @Success      200  {object}  domain.Product
// @Failure      400  {object}  response.ErrorEnvelope
// @Failure      404  {object}  response.ErrorEnvelope
// @Failure      500  {object}  response.ErrorEnvelope
// @Router       /products/{id} [get]
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	product, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeProductNotFound(w, r, id)
			return
		}
		h.internalError(w, r, "failed to load product", err)
		return
	}
	response.JSON(w, r, http.StatusOK, product)
}

// Create godoc
// @Summary      Create a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                      false  "Client token that de-duplicates retries"  maxlength(128)
// @Param        product          body      service.CreateProductInput  true   "Product to create"
// @Success      201              {object}  domain.Product
// @Failure      400              {object}  response.ErrorEnvelope
// @Failure      409              {object}  response.ErrorEnvelope
// @Failure      415              {object}  response.ErrorEnvelope
// @Failure      500              {object}  response.ErrorEnvelope
// @Router       /products [post]
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateProductInput
	if err := decodeJSONBody(r, &input); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	created, err := h.svc.Create(r.Context(), input)
	if err != nil {
		if writeValidationError(w, r, err) {
			return
		}
		h.internalError(w, r, "failed to create product", err)
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "product.create",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(created.ID), 10),
		Action:     "create",
		Outcome:    "success",
		Reason:     "product_created",
	}, "title", created.Title)
	response.JSON(w, r, http.StatusCreated, created)
}

// Update godoc
// @Summary      Partially update a product
// @Description  Writes only the fields present in the body. Responds 201 on success.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id       path      int                         true  "Product ID"  minimum(1)
// @Param        product  body      service.UpdateProductInput  true  "Fields to change"
// @Success      201      {object}  domain.Product
// @Failure      400      {object}  response.ErrorEnvelope
// @Failure      404      {object}  response.ErrorEnvelope
// @Failure      415      {object}  response.ErrorEnvelope
// @Failure      500      {object}  response.ErrorEnvelope
// @Router       /products/{id} [patch]
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var input service.UpdateProductInput
	if err := decodeJSONBody(r, &input); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			writeProductNotFound(w, r, id)
		case errors.Is(err, service.ErrProductNoUpdates):
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		case writeValidationError(w, r, err):
		default:
			h.internalError(w, r, "failed to update product", err)
		}
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "product.update",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(id), 10),
		Action:     "update",
		Outcome:    "success",
		Reason:     "product_updated",
	})
	response.JSON(w, r, http.StatusCreated, updated)
}

// Delete godoc
// @Summary      Delete a product
// @Tags         products
// @Produce      json
// @Param        id   path      int  true  "Product ID"  minimum(1)
// @Success      200  {object}  handler.DeleteResponse
// @Failure      400  {object}  response.ErrorEnvelope
// @Failure      404  {object}  response.ErrorEnvelope
// @Failure      500  {object}  response.ErrorEnvelope
// @Router       /products/{id} [delete]
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeProductNotFound(w, r, id)
			return
		}
		h.internalError(w, r, "failed to delete product", err)
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "product.delete",
		TargetType: "product",
		TargetID:   strconv.FormatUint(uint64(id), 10),
		Action:     "delete",
		Outcome:    "success",
		Reason:     "product_deleted",
	})
	response.JSON(w, r, http.StatusOK, DeleteResponse{
		Message: fmt.Sprintf("The resource with id of %d was successfully deleted from database.", id),
	})
}

// productID reads the id stored by ValidatePathParams. A route mounted
// without the filter is a wiring bug and answers 500.
func (h *ProductHandler) productID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := middleware.PathUint(r.Context(), "id")
	if !ok {
		h.internalError(w, r, "failed to resolve product id", errors.New("id path parameter was not validated"))
		return 0, false
	}
	return id, true
}

func (h *ProductHandler) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.ErrorContext(r.Context(), message, "error", err, "method", r.Method, "path", r.URL.Path)
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL", message, nil)
}

func writeProductNotFound(w http.ResponseWriter, r *http.Request, id uint) {
	response.Error(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("product %d not found", id), nil)
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var decodeErr *requestDecodeError
	if !errors.As(err, &decodeErr) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if decodeErr.status == http.StatusRequestEntityTooLarge {
		response.Error(w, r, decodeErr.status, "PAYLOAD_TOO_LARGE", decodeErr.message, nil)
		return
	}
	var details any
	if decodeErr.field != "" {
		details = []service.FieldError{{Field: decodeErr.field, Message: decodeErr.message}}
	}
	response.Error(w, r, decodeErr.status, "BAD_REQUEST", decodeErr.message, details)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) bool {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid product payload", verr.Fields)
	return true
}
