package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	yolobridge "github.com/swdee/go-yolobridge"
	"github.com/swdee/go-yolobridge/ipc"
	"github.com/swdee/go-yolobridge/render"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	enginePath := flag.String("e", "/opt/yolo/yolo-engine", "Path to inference engine binary")
	modelFile := flag.String("m", "../data/yolo11n.tflite", "YOLO model file to load")
	taskName := flag.String("t", "detect", "Model task [detect|segment|classify|pose|obb]")
	imgFile := flag.String("i", "../data/bus.jpg", "Image file to run inference on")
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing model labels")
	saveFile := flag.String("o", "./bus-out.jpg", "File to save annotated image to")

	flag.Parse()

	task, err := yolobridge.ParseTask(*taskName)

	if err != nil {
		log.Fatal("Error parsing task: ", err)
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	predictor, err := yolobridge.New(yolobridge.Config{
		ModelPath: *modelFile,
		Task:      task,
		Messenger: engine,
		Labels:    labels,
	})

	if err != nil {
		log.Fatal("Error creating predictor: ", err)
	}

	defer predictor.Dispose(context.Background())

	ok, err := predictor.LoadModel(ctx)

	if err != nil {
		log.Fatal("Error loading model: ", err)
	}

	if !ok {
		log.Fatal("Engine declined to load model: ", *modelFile)
	}

	// load image
	imgData, err := os.ReadFile(*imgFile)

	if err != nil {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	pred, err := predictor.Predict(ctx, imgData,
		yolobridge.WithConfidenceThreshold(0.25))

	if err != nil {
		log.Fatal("Error running prediction: ", err)
	}

	log.Printf("Inference took %.2fms (%.1f FPS), %d objects detected",
		pred.ProcessingTimeMs, pred.FPS, len(pred.Detections))

	for _, det := range pred.Detections {
		fmt.Printf("%s @ (%d %d %d %d) %f\n", det.ClassName,
			int(det.Box.Left), int(det.Box.Top),
			int(det.Box.Right), int(det.Box.Bottom), det.Confidence)
	}

	// annotate source image with the detection results
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	switch task {
	case yolobridge.Segment:
		err = render.SegmentOutline(&img, pred.Detections, 40,
			render.DefaultFont(), 1)

		if err != nil {
			log.Fatal("Error rendering segment outlines: ", err)
		}

	case yolobridge.Pose:
		render.PoseKeyPoints(&img, pred.Detections, 2)
		render.DetectionBoxes(&img, pred.Detections, render.DefaultFont(), 2)

	case yolobridge.OBB:
		render.OrientedBoxes(&img, pred.Detections, render.DefaultFont(), 2)

	default:
		render.DetectionBoxes(&img, pred.Detections, render.DefaultFont(), 2)
	}

	// Save the result
	if ok := gocv.IMWrite(*saveFile, img); !ok {
		log.Println("Failed to save the image")
	}

	log.Println("done")
}
