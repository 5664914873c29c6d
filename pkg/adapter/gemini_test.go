package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/model"
	"google.golang.org/genai"
)

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "permission denied maps to auth",
			err:      genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "API key not valid"},
			sentinel: model.ErrAuth,
		},
		{
			name:     "unauthenticated maps to auth",
			err:      genai.APIError{Code: 401, Status: "UNAUTHENTICATED", Message: "invalid credentials"},
			sentinel: model.ErrAuth,
		},
		{
			name:     "resource exhausted maps to quota",
			err:      genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded"},
			sentinel: model.ErrQuota,
		},
		{
			name:     "transport failure maps to network",
			err:      errors.New("connection reset by peer"),
			sentinel: model.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := adapter.ClassifyGeminiErrorForTest(tt.err)
			gt.Error(t, classified)
			gt.V(t, errors.Is(classified, tt.sentinel)).Equal(true)
		})
	}

	t.Run("server error keeps original chain", func(t *testing.T) {
		orig := genai.APIError{Code: 500, Status: "INTERNAL", Message: "server error"}
		classified := adapter.ClassifyGeminiErrorForTest(orig)
		gt.Error(t, classified)
		gt.V(t, errors.Is(classified, model.ErrAuth)).Equal(false)
		gt.V(t, errors.Is(classified, model.ErrQuota)).Equal(false)

		var apiErr genai.APIError
		gt.V(t, errors.As(classified, &apiErr)).Equal(true)
		gt.V(t, apiErr.Code).Equal(500)
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		classified := adapter.ClassifyGeminiErrorForTest(context.Canceled)
		gt.V(t, errors.Is(classified, context.Canceled)).Equal(true)
	})
}
