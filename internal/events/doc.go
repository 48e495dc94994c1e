// Package events defines the topics and the tagged payload union
// carried by the in-process bus. Downstream dispatch switches on the
// payload kind; grouping goes through the LibraryScoped accessor so no
// consumer depends on which variant carried the library id.
package events
