package dispatch

// RouteHandler adapts a Router to the Handler capability so it can be
// the terminal stage of a Chain: resolve ctx.Request's (method, path) to
// a registered handler and invoke it, or return the categorized error
// Router.Match produced (404/405), which the ExceptionHandler converts
// to a response.
func RouteHandler(router *Router) Handler {
	return func(ctx *Context) error {
		handler, params, err := router.Match(ctx.Request.Method, ctx.Request.Path)
		if err != nil {
			return err
		}
		ctx.Request.PathParams = params
		return handler(ctx)
	}
}
