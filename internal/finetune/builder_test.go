package finetune

import (
	"bufio"
	"context"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/pdftest"
)

func trainingDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, NonCompliantDir)
	require.NoError(t, os.MkdirAll(input, 0o755))

	img := pdftest.JPEG(6, 6, color.Gray{Y: 10})
	a := pdftest.Build([]pdftest.Page{
		{Lines: []string{"Cover"}, Images: [][]byte{img, img}},
		{Lines: []string{"Sales chart"}, Images: [][]byte{img}},
	}, pdftest.Options{})
	b := pdftest.Build([]pdftest.Page{{Lines: []string{"Text only"}}}, pdftest.Options{})

	require.NoError(t, os.WriteFile(filepath.Join(input, "b.pdf"), b, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.PDF"), a, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(input, "readme.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestPDFs(t *testing.T) {
	dir := trainingDir(t)
	pdfs, err := NewBuilder(dir).PDFs()
	require.NoError(t, err)
	require.Len(t, pdfs, 2)
	assert.Equal(t, "a.PDF", filepath.Base(pdfs[0]))
	assert.Equal(t, "b.pdf", filepath.Base(pdfs[1]))
}

func TestPDFs_Errors(t *testing.T) {
	_, err := NewBuilder(t.TempDir()).PDFs()
	assert.ErrorContains(t, err, "missing input folder")

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, NonCompliantDir), 0o755))
	_, err = NewBuilder(dir).PDFs()
	assert.ErrorContains(t, err, "no PDF files")
}

func TestWriteTemplate(t *testing.T) {
	dir := trainingDir(t)
	var seen []string
	out, n, err := NewBuilder(dir, WithProgress(func(name string) { seen = append(seen, name) })).WriteTemplate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, filepath.Join(dir, LabelsTemplateFile), out)
	assert.Equal(t, []string{"a.PDF", "b.pdf"}, seen)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var labels []Label
	require.NoError(t, json.Unmarshal(data, &labels))
	assert.Equal(t, []Label{
		{Filename: "a.PDF", Page: 1, ImageIndex: 0},
		{Filename: "a.PDF", Page: 1, ImageIndex: 1},
		{Filename: "a.PDF", Page: 2, ImageIndex: 2},
	}, labels)
}

func TestWriteTrainingSet(t *testing.T) {
	dir := trainingDir(t)
	labels := []Label{
		{Filename: "a.PDF", Page: 1, ImageIndex: 0, Alt: "Company logo"},
		{Filename: "a.PDF", Page: 2, ImageIndex: 2, Alt: "Bar chart of sales", Longdesc: "Sales doubled"},
		{Filename: "a.PDF", Page: 9, ImageIndex: 9, Alt: "No such image"},
	}
	data, err := json.Marshal(labels)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LabelsFile), data, 0o644))

	out, n, err := NewBuilder(dir).WriteTrainingSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	type part struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	type line struct {
		Messages []json.RawMessage `json:"messages"`
	}

	var answers []models.AltTextResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for scanner.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		require.Len(t, l.Messages, 2)

		var user struct {
			Role    string `json:"role"`
			Content []part `json:"content"`
		}
		require.NoError(t, json.Unmarshal(l.Messages[0], &user))
		assert.Equal(t, "user", user.Role)
		require.Len(t, user.Content, 2)
		assert.Equal(t, "text", user.Content[0].Type)
		assert.Contains(t, user.Content[0].Text, "Context from document:")
		assert.True(t, strings.HasPrefix(user.Content[1].ImageURL.URL, "data:image/png;base64,"))

		var assistant struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		require.NoError(t, json.Unmarshal(l.Messages[1], &assistant))
		assert.Equal(t, "assistant", assistant.Role)

		var answer models.AltTextResult
		require.NoError(t, json.Unmarshal([]byte(assistant.Content), &answer))
		answers = append(answers, answer)
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []models.AltTextResult{
		{Alt: "Company logo", Confidence: 1, ImageID: "img_1_0"},
		{Alt: "Bar chart of sales", Longdesc: "Sales doubled", Confidence: 1, ImageID: "img_2_0"},
	}, answers)
}

func TestWriteTrainingSet_RequiresLabels(t *testing.T) {
	_, _, err := NewBuilder(trainingDir(t)).WriteTrainingSet(context.Background())
	assert.ErrorContains(t, err, "--template-only")
}
