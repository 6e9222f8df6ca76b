package tracker

import "github.com/swdee/go-dashmask/mask"

// RegionsToObjects takes the regions prepared by a mask.Compositor and
// converts them into tracker objects
func RegionsToObjects(regions []mask.Region) []Object {

	objs := make([]Object, 0, len(regions))

	for _, r := range regions {
		objs = append(objs, NewObject(r.Box, r.Class, r.Confidence))
	}

	return objs
}

// ObjectsToRegions converts tracker output back into regions for the
// mask.Compositor
func ObjectsToRegions(objs []Object) []mask.Region {

	regions := make([]mask.Region, 0, len(objs))

	for _, obj := range objs {
		regions = append(regions, mask.Region{
			Class:      obj.Label,
			Confidence: obj.Prob,
			Box:        obj.Box,
			TrackID:    obj.ID,
			Persisted:  obj.Persisted,
		})
	}

	return regions
}
