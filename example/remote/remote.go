package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	yolobridge "github.com/swdee/go-yolobridge"
	"github.com/swdee/go-yolobridge/mqttbridge"
	"github.com/swdee/go-yolobridge/wire"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	broker := flag.String("b", "tcp://localhost:1883", "MQTT broker address")
	topicPrefix := flag.String("p", "yolo", "MQTT topic prefix the engine host listens on")
	modelFile := flag.String("m", "yolo11n.tflite", "Model file to load, a path on the engine host")
	taskName := flag.String("t", "detect", "Model task [detect|segment|classify|pose|obb]")
	imgFile := flag.String("i", "../data/bus.jpg", "Image file to run inference on")

	flag.Parse()

	task, err := yolobridge.ParseTask(*taskName)

	if err != nil {
		log.Fatal("Error parsing task: ", err)
	}

	// connect to the engine host over MQTT
	bridge, err := mqttbridge.Dial(mqttbridge.Config{
		Broker:      *broker,
		TopicPrefix: *topicPrefix,
	})

	if err != nil {
		log.Fatal("Error connecting to broker: ", err)
	}

	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// the engine host resolves relative model paths against its own
	// storage, so check where the model lives before loading
	paths := yolobridge.GetStoragePaths(ctx, bridge)

	for name, path := range paths {
		log.Printf("Engine storage %s: %s", name, path)
	}

	info := yolobridge.CheckModelExists(ctx, bridge, *modelFile)

	if !wire.Bool(info, "exists", false) {
		log.Fatalf("Model %s not found on engine host: %s", *modelFile,
			wire.String(info, "error", "no such file"))
	}

	predictor, err := yolobridge.New(yolobridge.Config{
		ModelPath: *modelFile,
		Task:      task,
		Messenger: bridge,
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

	pred, err := predictor.Predict(ctx, imgData)

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

	log.Println("done")
}
