/*
Package tracker stabilises mask regions across frames.

The MaskTracker matches each new region to the nearest previously tracked
region, blends their coordinates with exponential smoothing and keeps regions
alive for a persistence window after their last detection.  Trail records the
recent centers of each tracked region for debug rendering.
*/
package tracker
