// Package video reads frames from and assembles frames into video containers
// by driving ffmpeg as a subprocess. Decoding uses a raw rgb24 pipe so frames
// arrive as plain RGB pixel grids with no channel-order ambiguity.
package video
