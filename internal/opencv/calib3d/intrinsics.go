package calib3d

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"stereo-mapper/internal/calib"
)

// IntrinsicSolver wraps cv::calibrateCamera with the default five-term distortion model and
// keeps the board pose it recovers for every view.
type IntrinsicSolver struct {
	flags gocv.CalibFlag
}

func NewIntrinsicSolver() *IntrinsicSolver {
	return &IntrinsicSolver{}
}

func (s *IntrinsicSolver) Calibrate(objects [][]r3.Vector, images [][]r2.Point, size image.Point) (calib.CameraFit, error) {
	if len(objects) != len(images) {
		return calib.CameraFit{}, fmt.Errorf("view count mismatch: %d object sets, %d image sets", len(objects), len(images))
	}
	if len(objects) < calib.MinViews {
		return calib.CameraFit{}, fmt.Errorf("%w: have %d views, need %d", calib.ErrInsufficientViews, len(objects), calib.MinViews)
	}

	obj := make([][]gocv.Point3f, len(objects))
	img := make([][]gocv.Point2f, len(images))
	for v := range objects {
		if len(objects[v]) != len(images[v]) {
			return calib.CameraFit{}, fmt.Errorf("view %d: %d object points, %d image points", v, len(objects[v]), len(images[v]))
		}
		obj[v] = make([]gocv.Point3f, len(objects[v]))
		img[v] = make([]gocv.Point2f, len(images[v]))
		for i, p := range objects[v] {
			obj[v][i] = gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
		}
		for i, p := range images[v] {
			img[v][i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
		}
	}

	objVec := gocv.NewPoints3fVectorFromPoints(obj)
	defer objVec.Close()
	imgVec := gocv.NewPoints2fVectorFromPoints(img)
	defer imgVec.Close()

	k := gocv.NewMat()
	defer k.Close()
	dist := gocv.NewMat()
	defer dist.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objVec, imgVec, size, &k, &dist, &rvecs, &tvecs, s.flags)
	if k.Empty() || k.Rows() != 3 || k.Cols() != 3 {
		return calib.CameraFit{}, fmt.Errorf("%w: camera matrix was not produced", calib.ErrCalibrationFailed)
	}

	coeffs := make([]float64, 0, 5)
	for i := 0; i < dist.Total() && i < 5; i++ {
		if dist.Rows() == 1 {
			coeffs = append(coeffs, dist.GetDoubleAt(0, i))
		} else {
			coeffs = append(coeffs, dist.GetDoubleAt(i, 0))
		}
	}
	distortion, err := calib.NewDistortion(coeffs)
	if err != nil {
		return calib.CameraFit{}, err
	}

	in := calib.Intrinsics{
		Fx:         k.GetDoubleAt(0, 0),
		Fy:         k.GetDoubleAt(1, 1),
		Cx:         k.GetDoubleAt(0, 2),
		Cy:         k.GetDoubleAt(1, 2),
		Distortion: distortion,
		RMS:        rms,
	}
	if err := in.CheckValid(); err != nil {
		return calib.CameraFit{}, err
	}
	return calib.CameraFit{Intrinsics: in, Poses: viewPoses(rvecs, tvecs, len(objects))}, nil
}

// viewPoses reads the per-view rotation and translation vectors calibrateCamera reports. Any
// shape other than one three-channel row per view yields no poses, leaving the stereo solve
// to estimate its own.
func viewPoses(rvecs, tvecs gocv.Mat, views int) []calib.Pose {
	if rvecs.Total() != views || tvecs.Total() != views || rvecs.Channels() != 3 || tvecs.Channels() != 3 {
		return nil
	}
	if rvecs.Type() != gocv.MatTypeCV64FC3 || tvecs.Type() != gocv.MatTypeCV64FC3 {
		return nil
	}
	at := func(m gocv.Mat, i int) gocv.Vecd {
		if m.Rows() == 1 {
			return m.GetVecdAt(0, i)
		}
		return m.GetVecdAt(i, 0)
	}

	poses := make([]calib.Pose, views)
	for i := range poses {
		r, t := at(rvecs, i), at(tvecs, i)
		poses[i] = calib.Pose{
			R: calib.Rodrigues(r3.Vector{X: r[0], Y: r[1], Z: r[2]}),
			T: r3.Vector{X: t[0], Y: t[1], Z: t[2]},
		}
	}
	return poses
}
