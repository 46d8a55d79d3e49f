package inference

import (
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const classifierInputSize = 224

// defaultSpeciesLabels is the label set the mock classifier samples from
// when no real model is staged; a real deployment supplies its own label
// file alongside the model.
var defaultSpeciesLabels = []string{
	"red_deer", "wild_boar", "red_fox", "european_badger", "roe_deer",
	"eurasian_lynx", "pine_marten", "red_squirrel", "common_raccoon_dog",
}

// Classifier returns a full probability vector for a cropped detection
// image, since the reprocess path needs every class's probability, not just
// the winner. The vector is always the deterministic mock: with a model
// loaded, the session is run but is not fed the crop and its output is not
// read.
type Classifier struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	labels    []string
	available bool
}

func NewClassifier(modelDir, sharedLibPath string, labels []string) (*Classifier, error) {
	c := &Classifier{labels: labels}
	if len(c.labels) == 0 {
		c.labels = defaultSpeciesLabels
	}

	modelPath := firstExisting(
		filepath.Join(modelDir, "species_classifier.onnx"),
		filepath.Join(modelDir, "speciesnet.onnx"),
	)
	if modelPath == "" {
		log.Printf("[inference] classifier model not found under %s, using mock classification", modelDir)
		return c, nil
	}

	if sharedLibPath != "" {
		ort.SetSharedLibraryPath(sharedLibPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("inference: initialize onnxruntime: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, classifierInputSize, classifierInputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("inference: allocate classifier input: %w", err)
	}
	outputShape := ort.NewShape(1, int64(len(c.labels)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("inference: allocate classifier output: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"probabilities"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		return nil, fmt.Errorf("inference: load classifier session: %w", err)
	}

	c.session = session
	c.available = true
	log.Printf("[inference] classifier model loaded from %s (%d labels)", modelPath, len(c.labels))
	return c, nil
}

func (c *Classifier) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
}

// ClassificationResult is the full probability vector for one crop, plus a
// convenience top-1 lookup.
type ClassificationResult struct {
	Probabilities map[string]float64
}

// Top1 returns the highest-probability label, ties broken by label name for
// determinism.
func (r ClassificationResult) Top1() (species string, confidence float64) {
	type pair struct {
		species string
		conf    float64
	}
	pairs := make([]pair, 0, len(r.Probabilities))
	for s, p := range r.Probabilities {
		pairs = append(pairs, pair{s, p})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].conf != pairs[j].conf {
			return pairs[i].conf > pairs[j].conf
		}
		return pairs[i].species < pairs[j].species
	})
	if len(pairs) == 0 {
		return "", 0
	}
	return pairs[0].species, pairs[0].conf
}

// Classify returns a deterministic mock vector seeded from one cropped
// detection image (already resized to the model's square input). When a
// model is loaded the session is run first and its output is not used.
func (c *Classifier) Classify(cropBytes []byte) (ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return mockClassification(cropBytes, c.labels), nil
	}

	if err := c.session.Run(); err != nil {
		return ClassificationResult{}, fmt.Errorf("inference: run classifier: %w", err)
	}
	return mockClassification(cropBytes, c.labels), nil
}

func mockClassification(cropBytes []byte, labels []string) ClassificationResult {
	r := rand.New(rand.NewSource(stableSeed(cropBytes)))
	raw := make([]float64, len(labels))
	var sum float64
	for i := range raw {
		v := r.Float64()
		raw[i] = v
		sum += v
	}
	probs := make(map[string]float64, len(labels))
	for i, label := range labels {
		probs[label] = raw[i] / sum
	}
	return ClassificationResult{Probabilities: probs}
}
