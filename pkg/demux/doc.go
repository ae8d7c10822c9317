// Package demux turns raw upstream events into reasoning and content
// fragments.
//
// Each backend protocol marks chain-of-thought differently. ThinkTagDemuxer
// handles plain-text streams where reasoning is wrapped in <think> markers
// that may be split across events; EventTypeDemuxer handles streams where
// every event names its own kind. Both treat malformed events as transport
// noise: they are counted and dropped, never surfaced as errors.
package demux
