package controller

import (
	"calvoice/activity"
	"calvoice/capture"
)

// NopView ignores every notification. Embed it to implement part of View.
type NopView struct{}

func (NopView) CaptureChanged(capture.Status, RequestStatus) {}
func (NopView) PromptChanged(RequestStatus)                  {}
func (NopView) InputChanged(string)                          {}
func (NopView) ResponseChanged(Response)                     {}
func (NopView) ActivityAdded(activity.Entry)                 {}

type multiView []View

// Views fans notifications out to each view in order.
func Views(views ...View) View {
	return multiView(views)
}

func (m multiView) CaptureChanged(s capture.Status, r RequestStatus) {
	for _, v := range m {
		v.CaptureChanged(s, r)
	}
}

func (m multiView) PromptChanged(r RequestStatus) {
	for _, v := range m {
		v.PromptChanged(r)
	}
}

func (m multiView) InputChanged(text string) {
	for _, v := range m {
		v.InputChanged(text)
	}
}

func (m multiView) ResponseChanged(r Response) {
	for _, v := range m {
		v.ResponseChanged(r)
	}
}

func (m multiView) ActivityAdded(e activity.Entry) {
	for _, v := range m {
		v.ActivityAdded(e)
	}
}
