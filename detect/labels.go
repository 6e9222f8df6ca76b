package detect

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

// Class names emitted by the dashcam detector models
const (
	ClassPerson       = "person"
	ClassFace         = "face"
	ClassLicensePlate = "license_plate"
	ClassAnimal       = "animal"
)

// DashcamLabels is the label list of the on-device object detection model
var DashcamLabels = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
}

// AlertClasses are the classes forwarded to the alerting collaborator
var AlertClasses = NewClassSet("person", "bicycle", "car", "truck", "bus",
	"motorcycle", "stop sign", "traffic light")

// DefaultRedactClasses returns the classes that are masked when no explicit
// list is configured
func DefaultRedactClasses() ClassSet {
	return NewClassSet(ClassPerson, ClassFace, ClassLicensePlate, ClassAnimal)
}

// ClassSet is a set of normalized class names
type ClassSet map[string]struct{}

// NewClassSet creates a set of the given class names
func NewClassSet(classes ...string) ClassSet {

	set := make(ClassSet, len(classes))

	for _, c := range classes {
		c = NormalizeClass(c)

		if c == "" {
			continue
		}

		set[c] = struct{}{}
	}

	return set
}

// Has reports whether class is in the set
func (s ClassSet) Has(class string) bool {
	_, ok := s[NormalizeClass(class)]
	return ok
}

// List returns the sorted class names in the set
func (s ClassSet) List() []string {

	out := make([]string, 0, len(s))

	for c := range s {
		out = append(out, c)
	}

	sort.Strings(out)

	return out
}

// ParseClassList parses a comma delimited list of class names, eg:
// "person, face,license_plate"
func ParseClassList(list string) ClassSet {
	return NewClassSet(strings.Split(list, ",")...)
}

// LabelDetector names the detections of a model that only reports class
// ids, so they can be matched against class sets
type LabelDetector struct {
	model  Detector
	labels []string
}

// NewLabelDetector wraps model using labels indexed by class id
func NewLabelDetector(model Detector, labels []string) *LabelDetector {
	return &LabelDetector{
		model:  model,
		labels: labels,
	}
}

// Detect runs the model and sets Class from ClassID on every detection
// without a class name.  Ids outside the label list are left unnamed
func (d *LabelDetector) Detect(img gocv.Mat) ([]Detection, error) {

	dets, err := d.model.Detect(img)

	if err != nil {
		return nil, err
	}

	for i := range dets {
		if dets[i].Class != "" {
			continue
		}

		if id := dets[i].ClassID; id >= 0 && id < len(d.labels) {
			dets[i].Class = d.labels[id]
		}
	}

	return dets, nil
}

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	// read and trim each line, blank lines are skipped
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return labels, nil
}
