package ledger

// SegmentTask is one entry of a SegmentPlan: the derived entity described
// in §3 that a chunked download is built from, fresh or resumed.
type SegmentTask struct {
	ID                int
	Start             int64
	End               int64
	AlreadyDownloaded int64
}

// PlanFresh splits [0, totalSize) into numConnections contiguous, disjoint
// segments. chunk_size = total_size / num_connections; the final segment
// absorbs the remainder.
func PlanFresh(totalSize int64, numConnections int) []SegmentTask {
	if numConnections < 1 {
		numConnections = 1
	}
	chunkSize := totalSize / int64(numConnections)
	plan := make([]SegmentTask, numConnections)

	start := int64(0)
	for i := 0; i < numConnections; i++ {
		end := start + chunkSize - 1
		if i == numConnections-1 {
			end = totalSize - 1
		}
		plan[i] = SegmentTask{ID: i, Start: start, End: end}
		start = end + 1
	}
	return plan
}

// PlanFromSegments rebuilds a SegmentPlan from persisted Segment Records,
// carrying over each segment's already-downloaded count. Used by
// resume_interrupted_download.
func PlanFromSegments(segments []Segment) []SegmentTask {
	plan := make([]SegmentTask, len(segments))
	for i, s := range segments {
		plan[i] = SegmentTask{
			ID:                s.ID,
			Start:             s.Start,
			End:               s.End,
			AlreadyDownloaded: s.Downloaded,
		}
	}
	return plan
}

// ToSegments converts a fresh SegmentPlan into the Segment Records stored
// on a Job Record at creation time.
func ToSegments(plan []SegmentTask) []Segment {
	segs := make([]Segment, len(plan))
	for i, t := range plan {
		segs[i] = Segment{ID: t.ID, Start: t.Start, End: t.End, Downloaded: t.AlreadyDownloaded}
	}
	return segs
}
