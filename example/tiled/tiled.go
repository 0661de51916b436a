package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	yolobridge "github.com/swdee/go-yolobridge"
	"github.com/swdee/go-yolobridge/ipc"
	"github.com/swdee/go-yolobridge/preprocess"
	"github.com/swdee/go-yolobridge/render"
	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	enginePath := flag.String("e", "/opt/yolo/yolo-engine", "Path to inference engine binary")
	modelFile := flag.String("m", "../data/yolo11n.tflite", "YOLO model file to load")
	imgFile := flag.String("i", "../data/aerial.jpg", "Large image file to run tiled detection on")
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing model labels")
	saveFile := flag.String("o", "./aerial-out.jpg", "File to save annotated image to")
	tileSize := flag.Int("s", 640, "Tile size, should match the models input dimensions")

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

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	predictor, err := yolobridge.New(yolobridge.Config{
		ModelPath: *modelFile,
		Task:      yolobridge.Detect,
		Messenger: engine,
		Labels:    labels,
	})

	if err != nil {
		log.Fatal("Error creating predictor: ", err)
	}

	defer predictor.Dispose(context.Background())

	if _, err := predictor.LoadModel(ctx); err != nil {
		log.Fatal("Error loading model: ", err)
	}

	// load image
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	// slice the source image into overlapping tiles sized for the model,
	// so small objects are not lost to downscaling
	tiler := preprocess.NewTiler(*tileSize, *tileSize, 0.2, 0.2)
	tiles := tiler.Slice(img)

	log.Printf("Source image %dx%d sliced into %d tiles",
		img.Cols(), img.Rows(), len(tiles))

	start := time.Now()

	for _, tile := range tiles {

		buf, err := preprocess.MatToJPEG(*tile.Mat())

		if err != nil {
			log.Fatal("Error encoding tile: ", err)
		}

		pred, err := predictor.Predict(ctx, buf)

		if err != nil {
			log.Fatal("Error running prediction: ", err)
		}

		// results come back in letterboxed model coordinates, translate
		// them onto the tile before recording
		dets := make([]result.Detection, len(pred.Detections))

		for i, det := range pred.Detections {
			det.Box = tile.Resizer().TranslateBox(det.Box)
			dets[i] = det
		}

		tiler.AddResult(tile, dets)
		tile.Free()
	}

	// merge per tile results into detections for the whole source image
	merged := tiler.Results(0.45, 0.6)

	log.Printf("Detected %d objects in %s", len(merged), time.Since(start))

	for _, det := range merged {
		fmt.Printf("%s @ (%d %d %d %d) %f\n", det.ClassName,
			int(det.Box.Left), int(det.Box.Top),
			int(det.Box.Right), int(det.Box.Bottom), det.Confidence)
	}

	render.DetectionBoxes(&img, merged, render.DefaultFont(), 2)

	// Save the result
	if ok := gocv.IMWrite(*saveFile, img); !ok {
		log.Println("Failed to save the image")
	}

	log.Println("done")
}
