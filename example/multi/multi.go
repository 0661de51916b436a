package main

import (
	"context"
	"flag"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	yolobridge "github.com/swdee/go-yolobridge"
	"github.com/swdee/go-yolobridge/ipc"
	"github.com/swdee/go-yolobridge/preprocess"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	enginePath := flag.String("e", "/opt/yolo/yolo-engine", "Path to inference engine binary")
	detectModel := flag.String("m", "../data/yolo11n.tflite", "Detection model file to load")
	poseModel := flag.String("p", "../data/yolo11n-pose.tflite", "Pose model file to load")
	imgFile := flag.String("i", "../data/bus.jpg", "Image file to run inference on")
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing model labels")

	flag.Parse()

	labels, err := yolobridge.LoadLabels(*labelFile)

	if err != nil {
		log.Printf("Proceeding without labels: %v", err)
	}

	// start the inference engine child process
	engine, err := ipc.NewEngine(ipc.Config{Path: *enginePath})

	if err != nil {
		log.Fatal("Error creating engine: ", err)
	}

	if err := engine.Start(context.Background()); err != nil {
		log.Fatal("Error starting engine: ", err)
	}

	defer engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// downscale the input so both models get a payload no larger than
	// they need
	imgData, err := loadImage(*imgFile, 1280, 1280)

	if err != nil {
		log.Fatal("Error reading image: ", err)
	}

	// each predictor gets its own engine instance so both models stay
	// loaded concurrently
	models := []struct {
		path string
		task yolobridge.Task
	}{
		{*detectModel, yolobridge.Detect},
		{*poseModel, yolobridge.Pose},
	}

	var wg sync.WaitGroup

	for _, m := range models {

		predictor, err := yolobridge.New(yolobridge.Config{
			ModelPath:     m.path,
			Task:          m.task,
			Messenger:     engine,
			MultiInstance: true,
			Labels:        labels,
		})

		if err != nil {
			log.Fatal("Error creating predictor: ", err)
		}

		defer predictor.Dispose(context.Background())

		if _, err := predictor.LoadModel(ctx); err != nil {
			log.Fatalf("Error loading model %s: %v", m.path, err)
		}

		wg.Add(1)

		go func(p *yolobridge.Predictor) {
			defer wg.Done()
			runPrediction(ctx, p, imgData)
		}(predictor)
	}

	log.Printf("Active engine instances: %s",
		strings.Join(yolobridge.Instances.ActiveIDs(), ", "))

	wg.Wait()

	log.Println("done")
}

// loadImage reads the image file and returns it as JPG data no larger
// than maxWidth x maxHeight
func loadImage(file string, maxWidth, maxHeight int) ([]byte, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	img, _, err := image.Decode(f)

	if err != nil {
		return nil, err
	}

	return preprocess.JPEGBytes(preprocess.ShrinkToFit(img, maxWidth, maxHeight), 0)
}

// runPrediction runs a single image inference and logs the results
func runPrediction(ctx context.Context, p *yolobridge.Predictor, imgData []byte) {

	start := time.Now()

	pred, err := p.Predict(ctx, imgData)

	if err != nil {
		log.Printf("Error predicting on instance %s: %v", p.InstanceID(), err)
		return
	}

	log.Printf("%dms - instance %s task %s detected %d objects",
		time.Since(start).Milliseconds(), p.InstanceID(), p.Task(),
		len(pred.Detections))

	for _, det := range pred.Detections {
		log.Printf("  %s: %.2f", det.ClassName, det.Confidence)
	}
}
