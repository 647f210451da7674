package classifier

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelOptions locate and describe an exported ONNX image classifier.
type ModelOptions struct {
	Dir        string
	File       string // model file inside Dir
	LabelsFile string // labels file inside Dir
	InputName  string
	OutputName string
	InputType  string // float32 | float16
	Output     string // logits | probabilities
	Preprocess Preprocess
}

// Model wraps the ONNX session with preallocated input/output tensors.
type Model struct {
	session *ort.AdvancedSession
	labels  []string
	pre     Preprocess
	fp16    bool
	logits  bool
	file    string

	input32  *ort.Tensor[float32]
	output32 *ort.Tensor[float32]
	input16  *ort.CustomDataTensor
	output16 *ort.CustomDataTensor
	scratch  []float32

	mu sync.Mutex
}

// LoadModel initializes the ONNX runtime, reads labels and creates the session.
func LoadModel(opts ModelOptions) (*Model, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("model dir is empty")
	}
	if opts.File == "" {
		opts.File = "model.onnx"
	}
	if opts.LabelsFile == "" {
		opts.LabelsFile = "labels.json"
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}
	if opts.Preprocess.Size <= 0 {
		opts.Preprocess = DefaultPreprocess()
	}

	modelPath := filepath.Join(opts.Dir, opts.File)
	labelsPath := filepath.Join(opts.Dir, opts.LabelsFile)

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	libPath := resolveSharedLibraryPath(opts.Dir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	m := &Model{
		labels: labels,
		pre:    opts.Preprocess,
		fp16:   strings.EqualFold(opts.InputType, "float16"),
		logits: !strings.EqualFold(opts.Output, "probabilities"),
		file:   modelPath,
	}

	inputShape := ort.NewShape(1, 3, int64(m.pre.Size), int64(m.pre.Size))
	outputShape := ort.NewShape(1, int64(len(labels)))

	var inputs, outputs []ort.Value
	if m.fp16 {
		m.scratch = make([]float32, m.pre.TensorLen())
		m.input16, err = ort.NewCustomDataTensor(inputShape, make([]byte, 2*m.pre.TensorLen()), ort.TensorElementDataTypeFloat16)
		if err != nil {
			return nil, fmt.Errorf("allocate fp16 input tensor: %w", err)
		}
		m.output16, err = ort.NewCustomDataTensor(outputShape, make([]byte, 2*len(labels)), ort.TensorElementDataTypeFloat16)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("allocate fp16 output tensor: %w", err)
		}
		inputs, outputs = []ort.Value{m.input16}, []ort.Value{m.output16}
	} else {
		m.input32, err = ort.NewEmptyTensor[float32](inputShape)
		if err != nil {
			return nil, fmt.Errorf("allocate input tensor: %w", err)
		}
		m.output32, err = ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("allocate output tensor: %w", err)
		}
		inputs, outputs = []ort.Value{m.input32}, []ort.Value{m.output32}
	}

	m.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		inputs,
		outputs,
		nil,
	)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return m, nil
}

// Labels returns the label order of the model output.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// ModelFile returns the path of the loaded model.
func (m *Model) ModelFile() string { return m.file }

// Classify runs inference on one spectrogram image.
func (m *Model) Classify(ctx context.Context, img image.Image) (*Result, error) {
	if m == nil || m.session == nil {
		return nil, errors.New("classifier model not initialized")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fp16 {
		if err := m.pre.FillCHW(img, m.scratch); err != nil {
			return nil, fmt.Errorf("%w: preprocess: %v", ErrInference, err)
		}
		putFloat16(m.input16.GetData(), m.scratch)
	} else {
		if err := m.pre.FillCHW(img, m.input32.GetData()); err != nil {
			return nil, fmt.Errorf("%w: preprocess: %v", ErrInference, err)
		}
	}

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrInference, err)
	}

	var raw []float64
	if m.fp16 {
		raw = getFloat16(m.output16.GetData())
	} else {
		out := m.output32.GetData()
		raw = make([]float64, len(out))
		for i, v := range out {
			raw[i] = float64(v)
		}
	}

	var probs []float64
	if m.logits {
		probs = Softmax(raw)
	} else {
		probs = Normalize(raw)
	}

	res, err := NewResult(m.labels, probs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return res, nil
}

// Close releases the session and tensors.
func (m *Model) Close() {
	if m == nil {
		return
	}
	if m.session != nil {
		_ = m.session.Destroy()
	}
	if m.input32 != nil {
		_ = m.input32.Destroy()
	}
	if m.output32 != nil {
		_ = m.output32.Destroy()
	}
	if m.input16 != nil {
		_ = m.input16.Destroy()
	}
	if m.output16 != nil {
		_ = m.output16.Destroy()
	}
}

// putFloat16 writes values as little-endian IEEE half floats.
func putFloat16(dst []byte, values []float32) {
	for i, v := range values {
		if 2*i+1 >= len(dst) {
			return
		}
		binary.LittleEndian.PutUint16(dst[2*i:], float16.Fromfloat32(v).Bits())
	}
}

func getFloat16(src []byte) []float64 {
	out := make([]float64, len(src)/2)
	for i := range out {
		out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32())
	}
	return out
}

// resolveSharedLibraryPath attempts to locate a platform-specific onnxruntime shared library.
// If ONNXRUNTIME_SHARED_LIBRARY_PATH is set, it wins; otherwise we probe common names/locations.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
