package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"
	"time"

	yolobridge "github.com/swdee/go-yolobridge"
	"github.com/swdee/go-yolobridge/ipc"
	"github.com/swdee/go-yolobridge/preprocess"
	"github.com/swdee/go-yolobridge/render"
	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

var (
	// FPS is the rate annotated frames are pushed to connected browsers
	FPS         = 30
	FPSinterval = time.Duration(float64(time.Second) / float64(FPS))
)

// Demo defines the struct for running the live detection demo
type Demo struct {
	// view is the live camera session on the engine
	view *yolobridge.View
	// font used for annotating frames
	font render.Font

	// mu guards the latest annotated frame
	mu sync.Mutex
	// latest is the most recent annotated frame encoded as a JPG file
	latest []byte
	// frameNum counts frames received from the engine
	frameNum int
}

// NewDemo returns an instance of Demo, a streaming HTTP server showing
// live camera video with object detection results drawn on
func NewDemo(view *yolobridge.View) *Demo {

	return &Demo{
		view: view,
		font: render.DefaultFont(),
	}
}

// Run consumes frames from the engine view, annotates them, and records
// the result for connected HTTP clients.  Returns when the view stops
func (d *Demo) Run() {

	for frame := range d.view.Frames() {
		d.annotateFrame(frame)
	}
}

// annotateFrame draws the detection results and processing statistics
// over the camera frame
func (d *Demo) annotateFrame(frame result.Frame) {

	// frames only carry camera pixels when the streaming config asked
	// for the original image
	if len(frame.OriginalImage) == 0 {
		return
	}

	img, err := gocv.IMDecode(frame.OriginalImage, gocv.IMReadColor)

	if err != nil || img.Empty() {
		log.Printf("Error decoding camera frame: %v", err)
		return
	}

	defer img.Close()

	render.DetectionBoxes(&img, frame.Detections, d.font, 2)
	render.PoseKeyPoints(&img, frame.Detections, 2)

	// blank out background and write processing statistics on top
	stats := d.view.MetricsSummary()

	rect := image.Rect(0, 0, img.Cols(), 20)
	gocv.Rectangle(&img, rect, render.Black, -1)

	gocv.PutTextWithParams(&img,
		fmt.Sprintf("Frame: %d, FPS: %.1f, Inference: %.2fms, Objects: %d",
			d.frameNum, stats.MeanFPS, stats.MeanMs, len(frame.Detections)),
		image.Pt(4, 14), gocv.FontHersheySimplex, 0.4, render.Pink, 1,
		gocv.LineAA, false)

	buf, err := preprocess.MatToJPEG(img)

	if err != nil {
		log.Printf("Error encoding annotated frame: %v", err)
		return
	}

	d.mu.Lock()
	d.latest = buf
	d.frameNum++
	d.mu.Unlock()
}

// latestFrame returns the most recent annotated frame, nil when none has
// arrived yet
func (d *Demo) latestFrame() []byte {

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.latest
}

// Stream is the HTTP handler function used to stream video frames to browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	log.Printf("New client connection established\n")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(FPSinterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("Client disconnected\n")
			return

		case <-ticker.C:

			buf := d.latestFrame()

			if buf == nil {
				continue
			}

			// Write the image to the response writer
			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(buf)
			w.Write([]byte("\r\n"))

			// Flush the buffer
			flusher, ok := w.(http.Flusher)
			if ok {
				flusher.Flush()
			}
		}
	}
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	enginePath := flag.String("e", "/opt/yolo/yolo-engine", "Path to inference engine binary")
	modelFile := flag.String("m", "../data/yolo11n.tflite", "YOLO model file to load")
	taskName := flag.String("t", "detect", "Model task [detect|segment|classify|pose|obb]")
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing model labels")
	viewID := flag.String("v", "0", "Engine view ID to attach to")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")

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

	ok, err := predictor.LoadModel(ctx)

	if err != nil {
		log.Fatal("Error loading model: ", err)
	}

	if !ok {
		log.Fatal("Engine declined to load model: ", *modelFile)
	}

	// attach to the live engine view, streaming frames with the camera
	// image included so they can be annotated and served
	cfg := yolobridge.DebugStreamingConfig()
	cfg.MaxFPS = FPS

	view := yolobridge.NewView(engine, yolobridge.ViewOptions{
		Labels:          labels,
		StreamingConfig: &cfg,
	})

	if err := view.Attach(ctx, *viewID); err != nil {
		log.Fatal("Error attaching view: ", err)
	}

	predictor.BindView(*viewID)

	demo := NewDemo(view)
	go demo.Run()

	http.HandleFunc("/stream", demo.Stream)

	// start http server
	log.Println(fmt.Sprintf("Open browser and view video at http://%s/stream",
		*httpAddr))
	log.Fatal(http.ListenAndServe(*httpAddr, nil))
}
