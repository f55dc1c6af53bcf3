package platform

import "github.com/rflorenc/psa-automation-workbench/internal/models"

// PSA entity registry. DeepLink templates point into the host UI and are
// best-effort: kinds without one simply produce no link.
var entityTypes = []models.EntityType{
	{Name: "Companies", Label: "Companies",
		DeepLink: "/Mvc/CRM/AccountDetail.mvc?accountId={id}"},
	{Name: "CompanyLocations", Label: "Company Locations", ParentField: "companyID"},
	{Name: "CompanyNotes", Label: "Company Notes", ParentField: "companyID"},
	{Name: "Contacts", Label: "Contacts", ParentField: "companyID",
		DeepLink: "/Mvc/CRM/ContactDetail.mvc?contactId={id}"},
	{Name: "ContactGroups", Label: "Contact Groups"},
	{Name: "ContactGroupContacts", Label: "Contact Group Members", ParentField: "contactGroupID"},
	{Name: "ConfigurationItems", Label: "Configuration Items", ParentField: "companyID",
		DeepLink: "/Mvc/CRM/InstalledProductDetail.mvc?installedProductId={id}"},
	{Name: "ConfigurationItemNotes", Label: "Configuration Item Notes", ParentField: "configurationItemID"},
	{Name: "ConfigurationItemAttachments", Label: "Configuration Item Attachments", ParentField: "parentID"},
	{Name: "Resources", Label: "Resources",
		DeepLink: "/Mvc/Admin/ResourceDetail.mvc?resourceId={id}"},
	{Name: "Tickets", Label: "Tickets", ParentField: "companyID",
		DeepLink: "/Mvc/ServiceDesk/TicketDetail.mvc?ticketId={id}"},
	{Name: "TicketNotes", Label: "Ticket Notes", ParentField: "ticketID"},
	{Name: "TicketSecondaryResources", Label: "Ticket Secondary Resources", ParentField: "ticketID"},
	{Name: "Tasks", Label: "Tasks", ParentField: "projectID"},
	{Name: "Projects", Label: "Projects", ParentField: "companyID",
		DeepLink: "/Mvc/Projects/ProjectDetail.mvc?projectId={id}"},
	{Name: "Appointments", Label: "Appointments", ParentField: "resourceID"},
}

// EntityTypes returns all browsable entity kinds.
func EntityTypes() []models.EntityType {
	result := make([]models.EntityType, len(entityTypes))
	copy(result, entityTypes)
	return result
}

// FindEntityType looks up an entity kind by name.
func FindEntityType(name string) (models.EntityType, bool) {
	for _, et := range entityTypes {
		if et.Name == name {
			return et, true
		}
	}
	return models.EntityType{}, false
}
