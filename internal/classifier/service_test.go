package classifier_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/file-classifier/internal/classifier"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractPath(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type fakeModel struct {
	label string
	err   error
	calls int
}

func (f *fakeModel) Predict(context.Context, string, map[string]domain.KeywordStats) (string, error) {
	f.calls++
	return f.label, f.err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const invoiceText = "invoice number 42, bill to Acme Corp, due date 2026-09-01, subtotal 100"

func defaults(t *testing.T) map[string][]string {
	t.Helper()
	kws, err := classifier.LoadKeywords("")
	require.NoError(t, err)
	return kws
}

func TestClassify_MissingFile(t *testing.T) {
	svc := classifier.New(defaults(t), &fakeExtractor{}, nil)
	_, err := svc.Classify(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	require.ErrorIs(t, err, domain.ErrClassification)
}

func TestClassify_KeywordOnly(t *testing.T) {
	path := writeTemp(t, "doc.txt", invoiceText)
	svc := classifier.New(defaults(t), &fakeExtractor{}, nil)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelInvoice, label)
}

func TestClassify_NoMatchesIsUnknown(t *testing.T) {
	path := writeTemp(t, "doc.txt", "completely unrelated prose about gardening")
	svc := classifier.New(defaults(t), &fakeExtractor{}, nil)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelUnknown, label)
}

func TestClassify_StrongKeywordOverridesModel(t *testing.T) {
	path := writeTemp(t, "doc.txt", invoiceText)
	model := &fakeModel{label: domain.LabelTaxReturn}
	svc := classifier.New(defaults(t), &fakeExtractor{}, model)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelInvoice, label)
	require.Equal(t, 1, model.calls)
}

func TestClassify_WeakKeywordDefersToModel(t *testing.T) {
	// A single matched keyword is below the override threshold.
	path := writeTemp(t, "doc.txt", "please see the attached invoice")
	model := &fakeModel{label: domain.LabelMedicalRecord}
	svc := classifier.New(defaults(t), &fakeExtractor{}, model)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelMedicalRecord, label)
}

func TestClassify_AgreementKeepsModelLabel(t *testing.T) {
	path := writeTemp(t, "doc.txt", invoiceText)
	model := &fakeModel{label: domain.LabelInvoice}
	svc := classifier.New(defaults(t), &fakeExtractor{}, model)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelInvoice, label)
}

func TestClassify_ModelErrorFallsBackToKeywords(t *testing.T) {
	path := writeTemp(t, "doc.txt", invoiceText)
	model := &fakeModel{err: errors.New("sidecar down")}
	svc := classifier.New(defaults(t), &fakeExtractor{}, model)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelInvoice, label)
}

func TestClassify_ExtractorUsedForDocuments(t *testing.T) {
	path := writeTemp(t, "doc.pdf", "%PDF-1.4 binary")
	svc := classifier.New(defaults(t), &fakeExtractor{text: invoiceText}, nil)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelInvoice, label)
}

func TestClassify_ExtractionFailureDegradesToUnknown(t *testing.T) {
	path := writeTemp(t, "doc.pdf", "%PDF-1.4 binary")
	svc := classifier.New(defaults(t), &fakeExtractor{err: errors.New("tika status 500")}, nil)

	label, err := svc.Classify(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.LabelUnknown, label)
}
