package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/internal/http/handler"
	"basegraph.app/roster/internal/model"
	"basegraph.app/roster/internal/service"
	"basegraph.app/roster/internal/store"
)

var _ = Describe("ModelHandler", func() {
	var (
		router *gin.Engine
		svc    *mockModelService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockModelService{}
		h := handler.NewModelHandler(svc)
		router.POST("/models", h.Create)
		router.GET("/models/:id", h.Get)
		router.PATCH("/models/:id", h.Update)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Create", func() {
		It("returns 201 with string ids", func() {
			svc.createFn = func(_ context.Context, p service.CreateModelParams) (*model.ModelProfile, error) {
				return &model.ModelProfile{
					ID:        1893456789012345678,
					FirstName: p.FirstName,
					LastName:  p.LastName,
					Email:     p.Email,
					Status:    "active",
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}

			w := do(http.MethodPost, "/models", `{"first_name":"Jane","last_name":"Doe","email":"jane@example.com"}`)

			Expect(w.Code).To(Equal(http.StatusCreated))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("1893456789012345678"))
			Expect(resp["user_id"]).To(BeNil())
			Expect(resp["email"]).To(Equal("jane@example.com"))
		})

		It("returns 400 when the email is invalid", func() {
			w := do(http.MethodPost, "/models", `{"first_name":"Jane","last_name":"Doe","email":"nope"}`)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when the service fails", func() {
			svc.createFn = func(context.Context, service.CreateModelParams) (*model.ModelProfile, error) {
				return nil, errors.New("db down")
			}

			w := do(http.MethodPost, "/models", `{"first_name":"Jane","last_name":"Doe","email":"jane@example.com"}`)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Update", func() {
		It("passes only the provided fields", func() {
			var got service.UpdateModelParams
			svc.updateFn = func(_ context.Context, id int64, p service.UpdateModelParams) (*model.ModelProfile, error) {
				Expect(id).To(Equal(int64(42)))
				got = p
				return &model.ModelProfile{ID: id, LastName: *p.LastName}, nil
			}

			w := do(http.MethodPatch, "/models/42", `{"last_name":"Smith"}`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.LastName).To(HaveValue(Equal("Smith")))
			Expect(got.FirstName).To(BeNil())
		})

		It("returns 404 for an unknown model", func() {
			svc.updateFn = func(_ context.Context, id int64, _ service.UpdateModelParams) (*model.ModelProfile, error) {
				return nil, fmt.Errorf("getting model %d: %w", id, store.ErrNotFound)
			}

			w := do(http.MethodPatch, "/models/42", `{"last_name":"Smith"}`)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a non-numeric id", func() {
			w := do(http.MethodPatch, "/models/abc", `{}`)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Get", func() {
		It("returns the linked user id as a string", func() {
			userID := int64(42)
			svc.getFn = func(_ context.Context, id int64) (*model.ModelProfile, error) {
				return &model.ModelProfile{ID: id, UserID: &userID}, nil
			}

			w := do(http.MethodGet, "/models/7", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["user_id"]).To(Equal("42"))
		})
	})
})
