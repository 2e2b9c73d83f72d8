package ocr

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// MockOracle mocks port.Oracle
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, req port.OracleRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockTextExtractor mocks TextExtractor
type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) Extract(ctx context.Context, pdf []byte) (string, error) {
	args := m.Called(ctx, pdf)
	return args.String(0), args.Error(1)
}

// MockClassifier mocks Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, text string) bool {
	return m.Called(ctx, text).Bool(0)
}

// MockFieldExtractor mocks FieldExtractor
type MockFieldExtractor struct {
	mock.Mock
}

func (m *MockFieldExtractor) Extract(ctx context.Context, text string) (*entity.ExtractedFields, error) {
	args := m.Called(ctx, text)
	fields, _ := args.Get(0).(*entity.ExtractedFields)
	return fields, args.Error(1)
}

// fakeRunner records tesseract invocations and answers with page texts in order
type fakeRunner struct {
	pages [][]byte
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte("tesseract crashed"), f.err
	}
	i := len(f.calls) - 1
	if i < len(f.pages) {
		return f.pages[i], nil, nil
	}
	return nil, nil, nil
}
