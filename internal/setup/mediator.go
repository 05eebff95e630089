package setup

import (
	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/the127/resumable/internal/commands"
	"github.com/the127/resumable/internal/queries"
)

func Mediator(dc *ioc.DependencyCollection) {
	mediator := mediatr.NewMediator()

	mediatr.RegisterHandler(mediator, commands.HandleCreateUploadSession)
	mediatr.RegisterHandler(mediator, commands.HandleWriteUploadChunk)
	mediatr.RegisterHandler(mediator, commands.HandleCancelUploadSession)

	mediatr.RegisterHandler(mediator, commands.HandleInsertObject)
	mediatr.RegisterHandler(mediator, commands.HandleComposeObject)
	mediatr.RegisterHandler(mediator, commands.HandleDeleteObject)
	mediatr.RegisterHandler(mediator, queries.HandleGetObject)
	mediatr.RegisterHandler(mediator, queries.HandleOpenObject)

	mediatr.RegisterHandler(mediator, commands.HandleFireFault)

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) mediatr.Mediator {
		return mediator
	})
}
