package reloc

import (
	"bufio"
	"fmt"
	"io"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/scorereloc/spatialmath"
)

// WritePCD dumps points as a minimal ASCII PCD point cloud (x y z, no
// colour field), in the teacher's pointcloud package's PCD layout, for
// offline inspection of a frame's inlier set or candidate projections.
// Not on the per-frame hot path; callers gate this behind a debug flag.
func WritePCD(w io.Writer, points []r3.Vector) error {
	bw := bufio.NewWriter(w)
	header := "VERSION .7\n" +
		"FIELDS x y z\n" +
		"SIZE 4 4 4\n" +
		"TYPE F F F\n" +
		"COUNT 1 1 1\n" +
		fmt.Sprintf("WIDTH %d\n", len(points)) +
		"HEIGHT 1\n" +
		"VIEWPOINT 0 0 0 1 0 0 0\n" +
		fmt.Sprintf("POINTS %d\n", len(points)) +
		"DATA ascii\n"
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	for _, p := range points {
		if _, err := fmt.Fprintf(bw, "%f %f %f\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// InlierPoints returns the scene-space projection of every current inlier
// under pose, for WritePCD dumps of a frame's refined inlier set.
func InlierPoints(pose spatialmath.Pose, inliers *InlierSet, kps KeypointImage) []r3.Vector {
	out := make([]r3.Vector, 0, len(inliers.Indices))
	for _, idx := range inliers.Indices {
		out = append(out, pose.Transform(kps.At(idx).Pos))
	}
	return out
}
