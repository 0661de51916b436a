package render

import (
	"image"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

/* skeleton keypoints
0: Nose
1: Left Eye
2: Right Eye
3: Left Ear
4: Right Ear
5: Left Shoulder
6: Right Shoulder
7: Left Elbow
8: Right Elbow
9: Left Wrist
10: Right Wrist
11: Left Hip
12: Right Hip
13: Left Knee
14: Right Knee
15: Left Ankle
16: Right Ankle
*/

var (
	// skeleton defines the pose skeleton points to draw lines between.  The numbers
	// are paired, so (16,14) means draw line from right ankle to right knee.
	skeleton = [38]int{16, 14, 14, 12, 17, 15, 15, 13, 12, 13, 6, 12, 7, 13, 6, 7, 6, 8,
		7, 9, 8, 10, 9, 11, 2, 3, 1, 2, 1, 3, 2, 4, 3, 5, 4, 6, 5, 7}
	// keyPointsTotal is the number of keypoints in a skeleton
	keyPointsTotal = 17
)

// keyPointMinConf is the confidence below which a keypoint is not drawn
const keyPointMinConf = 0.5

// PoseKeyPoints renders the pose estimation keypoints of each detection
// carrying a full skeleton.  Keypoints below the confidence threshold are
// skipped, as are their limb lines
func PoseKeyPoints(img *gocv.Mat, detections []result.Detection,
	lineThickness int) {

	for _, det := range detections {

		// an individual object's key points
		keyPoint := det.Keypoints

		if len(keyPoint) < keyPointsTotal {
			continue
		}

		// draw skeleton lines
		for j := 0; j < len(skeleton)/2; j++ {

			a := skeleton[2*j] - 1
			b := skeleton[2*j+1] - 1

			if !keyPointVisible(det, a) || !keyPointVisible(det, b) {
				continue
			}

			gocv.Line(img,
				image.Pt(int(keyPoint[a].X), int(keyPoint[a].Y)),
				image.Pt(int(keyPoint[b].X), int(keyPoint[b].Y)),
				limbColors[j], lineThickness)
		}

		// draw circles at skeleton joints
		for j := 0; j < keyPointsTotal; j++ {

			if !keyPointVisible(det, j) {
				continue
			}

			gocv.Circle(img, image.Pt(int(keyPoint[j].X), int(keyPoint[j].Y)),
				3, keyPointColors[j], -1)
		}
	}
}

// keyPointVisible reports whether keypoint j is confident enough to draw.
// Detections without per keypoint confidences draw every point
func keyPointVisible(det result.Detection, j int) bool {

	if j >= len(det.KeypointConf) {
		return true
	}

	return det.KeypointConf[j] >= keyPointMinConf
}
