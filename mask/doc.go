/*
Package mask irreversibly obscures sensitive regions of a frame.

A Compositor filters detections to the classes being redacted, inflates each
box by a ratio of its own size, grows tiny boxes to a minimum size and then
overwrites the region of a private copy of the frame with either a pixelated
mosaic or a gaussian blur.  Every masked region produces a Metadata record
for the audit trail.
*/
package mask
