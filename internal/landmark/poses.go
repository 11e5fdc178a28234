package landmark

// fingerChains lists MCP, PIP, DIP, tip for index, middle, ring and pinky.
var fingerChains = [4][4]int{
	{IndexMCP, IndexPIP, IndexDIP, IndexTip},
	{MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip},
	{RingMCP, RingPIP, RingDIP, RingTip},
	{PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip},
}

// PoseLandmarks builds a right hand with the wrist at (0.5, 0.8).
// extended[0] is the thumb, extended[1..4] index through pinky; a curled
// finger folds back toward the palm.
func PoseLandmarks(extended [5]bool) HandLandmarks {
	h := HandLandmarks{Handedness: "Right", Score: 0.95}
	h.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	if extended[0] {
		h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
		h.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
		h.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
		h.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}
	} else {
		h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.76, Z: 0.0}
		h.Points[ThumbMCP] = Point3D{X: 0.57, Y: 0.72, Z: -0.01}
		h.Points[ThumbIP] = Point3D{X: 0.55, Y: 0.69, Z: -0.03}
		h.Points[ThumbTip] = Point3D{X: 0.52, Y: 0.68, Z: -0.04}
	}

	for f, chain := range fingerChains {
		baseX := 0.55 - 0.05*float64(f)
		h.Points[chain[0]] = Point3D{X: baseX, Y: 0.68}
		if extended[f+1] {
			h.Points[chain[1]] = Point3D{X: baseX, Y: 0.55}
			h.Points[chain[2]] = Point3D{X: baseX, Y: 0.45}
			h.Points[chain[3]] = Point3D{X: baseX, Y: 0.35}
		} else {
			h.Points[chain[1]] = Point3D{X: baseX, Y: 0.66, Z: -0.05}
			h.Points[chain[2]] = Point3D{X: baseX - 0.03, Y: 0.68, Z: -0.04}
			h.Points[chain[3]] = Point3D{X: baseX - 0.05, Y: 0.70, Z: -0.02}
		}
	}

	return h
}

// ThumbsUpLandmarks returns a hand with only the thumb extended.
func ThumbsUpLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{true, false, false, false, false})
}

// OpenPalmLandmarks returns a hand with all fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{true, true, true, true, true})
}

// FistLandmarks returns a hand with every finger curled.
func FistLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{})
}

// RamLandmarks returns the index-and-middle raised pose of the ram sign.
func RamLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{false, true, true, false, false})
}
