/*
Package detect defines the values exchanged with the detector collaborator:
bounding boxes, detections and their modality specific payloads.

A Detection may carry a PlatePayload (license plate crop) or a FacePayload
(landmarks and identity embedding).  Payload is a sealed interface so callers
handle each kind with a type switch:

	switch p := det.Payload.(type) {
	case *detect.PlatePayload:
		ocr(p.Crop)
	case *detect.FacePayload:
		match(p.Embedding)
	case nil:
		// plain object
	}
*/
package detect
