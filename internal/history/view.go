package history

// View is the paging state of one history screen.
type View struct {
	Window   Window
	Page     int
	PageSize int
}

// NewView starts on the first page of the unbounded window.
func NewView(pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &View{Window: WindowAll, Page: 1, PageSize: pageSize}
}

// SetWindow switches the window. A different window always starts from page 1.
func (v *View) SetWindow(w Window) {
	if w == v.Window {
		return
	}
	v.Window = w
	v.Page = 1
}

// SetPage moves to page p, never below 1.
func (v *View) SetPage(p int) {
	v.Page = max(p, 1)
}

// Clamp keeps the page within [1, totalPages].
func (v *View) Clamp(totalPages int) {
	v.Page = min(max(v.Page, 1), max(totalPages, 1))
}
