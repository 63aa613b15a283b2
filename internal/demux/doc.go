// Package demux analyzes elementary stream payloads carried in a transport
// stream. It turns PES payloads into access units with keyframe and
// droppable flags, derives stream formats from parameter sets and ADTS
// headers, and decodes CEA-608/708 captions carried in H.264 SEI.
//
// [VideoParser] and [AudioParser] hold the per-PID state; the lower-level
// helpers ([ParseAnnexB], [ParseHEVCSPS], [ParseADTS]) are usable on their
// own.
package demux
